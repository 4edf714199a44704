package text

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestStream(t *testing.T) {
	stream := New().NewStream(strings.NewReader("Hello, world!\n\nIt's  a test."))

	var got []string
	for {
		symbol, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, symbol)
	}

	want := []string{"Hello", ",", "world", "!", "It's", "a", "test", "."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected symbols %q, got %q", want, got)
	}
}

func TestSentences(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		opts  []Option
		want  [][]string
	}{
		{
			name:  "Two sentences",
			input: "one fish two fish. red fish blue fish!",
			want:  [][]string{{"one", "fish", "two", "fish", "."}, {"red", "fish", "blue", "fish", "!"}},
		},
		{
			name:  "Trailing sentence without mark",
			input: "a b. c d",
			want:  [][]string{{"a", "b", "."}, {"c", "d"}},
		},
		{
			name:  "Commas do not end sentences",
			input: "a, b; c?",
			want:  [][]string{{"a", ",", "b", ";", "c", "?"}},
		},
		{
			name:  "Long sentence is split",
			input: "a b c d e",
			opts:  []Option{WithMaxSentenceLength(2)},
			want:  [][]string{{"a", "b"}, {"c", "d"}, {"e"}},
		},
		{
			name:  "Empty input",
			input: "   \n",
			want:  nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := New(tc.opts...).Sentences(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Sentences failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Sentences() got = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	testCases := []struct {
		name    string
		symbols []string
		opts    []Option
		want    string
	}{
		{"Words get an EOC", []string{"one", "fish", "two", "fish"}, nil, "one fish two fish."},
		{"Punctuation is attached", []string{"hello", ",", "world", "!"}, nil, "hello, world!"},
		{"Custom separator and EOC", []string{"a", "b"}, []Option{WithSeparator("_"), WithEOC("$")}, "a_b$"},
		{"Empty", nil, nil, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := New(tc.opts...).Render(tc.symbols); got != tc.want {
				t.Errorf("Render() got = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSymbolsCustomRegex(t *testing.T) {
	tok := New(WithSeparatorRegex(`\S+`), WithEOCRegex(`^$`))
	got, err := tok.Symbols(strings.NewReader("don't split-me. ok"))
	if err != nil {
		t.Fatalf("Symbols failed: %v", err)
	}
	want := []string{"don't", "split-me.", "ok"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
	if tok.IsEOC(".") {
		t.Error("expected custom EOC regex to replace the default")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestSymbolsReadError(t *testing.T) {
	if _, err := New().Symbols(failingReader{}); err == nil {
		t.Error("expected a read error to be returned")
	}
}
