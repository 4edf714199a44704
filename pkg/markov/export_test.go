package markov

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/CTAG07/cadence/pkg/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImport(t *testing.T) {
	m := newTrainedModel(t)

	var buf bytes.Buffer
	if err := m.Export(&buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	exported := buf.String()

	t.Run("Load into new model", func(t *testing.T) {
		loaded, err := Load(strings.NewReader(exported), order.Natural[string]())
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.Stats() != m.Stats() {
			t.Errorf("loaded stats %+v, want %+v", loaded.Stats(), m.Stats())
		}
		for chain := range m.Chains() {
			path := append(append([]string{}, chain.Context...), chain.Next)
			if got := loaded.Count(path); got != chain.Count {
				t.Errorf("chain %v: loaded count %d, want %d", path, got, chain.Count)
			}
		}
	})

	t.Run("Import merges counts", func(t *testing.T) {
		merged := newTrainedModel(t)
		if err := merged.Import(strings.NewReader(exported)); err != nil {
			t.Fatalf("Import failed: %v", err)
		}
		if got := merged.Count([]string{"A", "B", "C"}); got != 4 {
			t.Errorf("expected merged count 4, got %d", got)
		}
		if got := merged.Count([]string{"A"}); got != 6 {
			t.Errorf("expected merged context count 6, got %d", got)
		}
	})

	t.Run("Order mismatch", func(t *testing.T) {
		other := newTestModel(t, 3)
		if err := other.Import(strings.NewReader(exported)); !errors.Is(err, ErrOrderMismatch) {
			t.Errorf("expected ErrOrderMismatch, got %v", err)
		}
	})
}

func TestImportRejectsBadChains(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"Malformed json", `{"order": 2, "chains": [`},
		{"Short context", `{"order": 2, "chains": [{"context": ["A"], "next": "B", "count": 1}]}`},
		{"Zero count", `{"order": 2, "chains": [{"context": ["A", "B"], "next": "C", "count": 0}]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel(t, 2)
			if err := m.Import(strings.NewReader(tc.input)); err == nil {
				t.Fatal("expected an error, got nil")
			}
			if m.Trained() {
				t.Error("a rejected import must leave the model untouched")
			}
		})
	}
}

func TestLoadInvalidOrder(t *testing.T) {
	_, err := Load(strings.NewReader(`{"order": 0, "chains": []}`), order.Natural[string]())
	if !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("expected ErrInvalidOrder, got %v", err)
	}
}

// TestExportDuringTrain exports repeatedly while a trainer keeps adding new
// transitions. Every snapshot must only hold positive counts and load back.
func TestExportDuringTrain(t *testing.T) {
	m := newTestModel(t, 2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20000; i++ {
			assert.NoError(t, m.Train([]string{"p", "q", "n" + strconv.Itoa(i)}))
		}
	}()

	var snapshots int
	for running := true; running; snapshots++ {
		select {
		case <-done:
			running = false
		default:
		}

		for chain := range m.Chains() {
			if !assert.Positive(t, chain.Count, "chain %v -> %v", chain.Context, chain.Next) {
				break
			}
		}
		stats := m.Stats()
		assert.GreaterOrEqual(t, stats.Observations, stats.Transitions)

		var buf bytes.Buffer
		require.NoError(t, m.Export(&buf))
		if _, err := Load(&buf, order.Natural[string]()); !assert.NoError(t, err, "snapshot %d does not load", snapshots) {
			<-done
			return
		}
	}

	require.Equal(t, 20000, m.Stats().Transitions)
}
