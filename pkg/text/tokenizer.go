package text

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// maxSentenceLength caps the number of symbols in a single sentence returned
// by Sentences. Longer runs without an end-of-sentence mark are split.
const maxSentenceLength = 4096

// maxLineSize is the largest line the stream scanner accepts.
const maxLineSize = 1 << 20

// Tokenizer splits text into symbols and joins them back together. It uses
// regular expressions to split text into words and punctuation, and
// identifies sentence-ending punctuation as end-of-chain (EOC) symbols.
// A Tokenizer is immutable after New and safe for concurrent use.
type Tokenizer struct {
	separator         string
	eoc               string
	maxSentence       int
	separatorRegex    *regexp.Regexp
	eocRegex          *regexp.Regexp
	separatorExcRegex *regexp.Regexp
	eocExcRegex       *regexp.Regexp
}

// Option is a function that configures a Tokenizer.
type Option func(*Tokenizer)

// WithSeparator sets the string used for joining symbols in Render.
// Default: " "
func WithSeparator(sep string) Option {
	return func(t *Tokenizer) {
		t.separator = sep
	}
}

// WithEOC sets the string appended by Render when the last symbol is not
// already punctuation.
// Default: "."
func WithEOC(eoc string) Option {
	return func(t *Tokenizer) {
		t.eoc = eoc
	}
}

// WithSeparatorRegex sets the regex string to use when splitting input text.
// Default: `[\w']+|[.,!?;]`
func WithSeparatorRegex(splitRegex string) Option {
	return func(t *Tokenizer) {
		t.separatorRegex = regexp.MustCompile(splitRegex)
	}
}

// WithEOCRegex sets the regex string to use when deciding whether a symbol ends a sentence.
// Default: `^[.!?]$`
func WithEOCRegex(eocRegex string) Option {
	return func(t *Tokenizer) {
		t.eocRegex = regexp.MustCompile(eocRegex)
	}
}

// WithSeparatorExcRegex sets the regex string to use when deciding whether to add a separator before a symbol.
// Default: `^[.,!?;]`
func WithSeparatorExcRegex(splitExcRegex string) Option {
	return func(t *Tokenizer) {
		t.separatorExcRegex = regexp.MustCompile(splitExcRegex)
	}
}

// WithEOCExcRegex sets the regex string to use when deciding whether to add an EOC after the last symbol.
// Default: `^[.,!?;]`
func WithEOCExcRegex(eocRegex string) Option {
	return func(t *Tokenizer) {
		t.eocExcRegex = regexp.MustCompile(eocRegex)
	}
}

// WithMaxSentenceLength sets how many symbols Sentences allows in one
// sentence before splitting it. Values below 1 are ignored.
func WithMaxSentenceLength(n int) Option {
	return func(t *Tokenizer) {
		if n > 0 {
			t.maxSentence = n
		}
	}
}

// New creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{
		separator:   " ",
		eoc:         ".",
		maxSentence: maxSentenceLength,
		// Sequences of word characters (letters, numbers, underscore, apostrophe)
		// OR single instances of common punctuation.
		separatorRegex: regexp.MustCompile(`[\w']+|[.,!?;]`),
		eocRegex:       regexp.MustCompile(`^[.!?]$`),
		// Symbols that don't get a separator put before them.
		separatorExcRegex: regexp.MustCompile(`^[.,!?;]`),
		// Symbols that don't get an EOC put after them.
		eocExcRegex: regexp.MustCompile(`^[.,!?;]`),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Separator returns the string to put between prev and next.
func (t *Tokenizer) Separator(_, next string) string {
	if t.separatorExcRegex.MatchString(next) {
		return ""
	}
	return t.separator
}

// EOC returns the string to append after last, the final symbol of an output.
func (t *Tokenizer) EOC(last string) string {
	if t.eocExcRegex.MatchString(last) {
		return ""
	}
	return t.eoc
}

// IsEOC reports whether symbol ends a sentence.
func (t *Tokenizer) IsEOC(symbol string) bool {
	return t.eocRegex.MatchString(symbol)
}

// NewStream returns a stream over the symbols of r.
func (t *Tokenizer) NewStream(r io.Reader) *Stream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Stream{
		scanner:    scanner,
		splitRegex: t.separatorRegex,
	}
}

// Symbols reads r to the end and returns every symbol in order.
func (t *Tokenizer) Symbols(r io.Reader) ([]string, error) {
	stream := t.NewStream(r)
	var symbols []string
	for {
		symbol, err := stream.Next()
		if err == io.EOF {
			return symbols, nil
		}
		if err != nil {
			return symbols, err
		}
		symbols = append(symbols, symbol)
	}
}

// Sentences reads r to the end and splits its symbols into sentences. Each
// sentence keeps its closing punctuation as the last symbol. Trailing
// symbols without a closing mark form a final sentence.
func (t *Tokenizer) Sentences(r io.Reader) ([][]string, error) {
	stream := t.NewStream(r)
	var sentences [][]string
	var current []string
	for {
		symbol, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sentences, err
		}
		current = append(current, symbol)
		if t.IsEOC(symbol) || len(current) >= t.maxSentence {
			sentences = append(sentences, current)
			current = nil
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, current)
	}
	return sentences, nil
}

// Render joins symbols into prose using the separator and EOC rules.
func (t *Tokenizer) Render(symbols []string) string {
	if len(symbols) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(symbols[0])
	for i := 1; i < len(symbols); i++ {
		sb.WriteString(t.Separator(symbols[i-1], symbols[i]))
		sb.WriteString(symbols[i])
	}
	sb.WriteString(t.EOC(symbols[len(symbols)-1]))
	return sb.String()
}

// Stream reads symbols from an io.Reader one line at a time.
type Stream struct {
	scanner    *bufio.Scanner
	buffer     []string
	splitRegex *regexp.Regexp
}

// Next returns the next symbol from the stream. When the stream is
// exhausted, it returns io.EOF. Any other error indicates a problem reading
// from the underlying reader.
func (s *Stream) Next() (string, error) {
	for len(s.buffer) == 0 { // Loop until we have symbols
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		s.buffer = s.splitRegex.FindAllString(s.scanner.Text(), -1)
	}

	symbol := s.buffer[0]
	s.buffer = s.buffer[1:]
	return symbol, nil
}
