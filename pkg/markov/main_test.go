package markov

import (
	"strings"
	"testing"

	"github.com/CTAG07/cadence/pkg/order"
)

// scenario is the sequence A B C A B D A B C, which at order 2 records the
// context [A B] followed by C twice and D once.
var scenario = strings.Fields("A B C A B D A B C")

// newTestModel creates an empty string model of the given order.
func newTestModel(t testing.TB, k int) *Model[string] {
	t.Helper()
	m, err := New(k, order.Natural[string]())
	if err != nil {
		t.Fatalf("New(%d) error = %v", k, err)
	}
	return m
}

// newTrainedModel is a convenience helper that also trains on the scenario.
func newTrainedModel(t testing.TB) *Model[string] {
	t.Helper()
	m := newTestModel(t, 2)
	if err := m.Train(scenario); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	return m
}

// benchmarkCorpus returns a word sequence large enough for benchmarks.
func benchmarkCorpus() []string {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("one fish two fish red fish blue fish . ")
		sb.WriteString("this one has a little star . this one has a little car . ")
	}
	return strings.Fields(sb.String())
}
