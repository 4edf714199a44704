package markov

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrain(t *testing.T) {
	m := newTrainedModel(t)

	// Every (k+1)-window of the training sequence must be present.
	for i := 0; i+3 <= len(scenario); i++ {
		window := scenario[i : i+3]
		if got := m.Count(window); got < 1 {
			t.Errorf("window %v: expected count >= 1, got %d", window, got)
		}
	}

	stats := m.Stats()
	if stats.Observations != len(scenario)-2 {
		t.Errorf("expected %d observations, got %d", len(scenario)-2, stats.Observations)
	}
}

func TestTrainShortSequence(t *testing.T) {
	m := newTestModel(t, 3)
	m.Train([]string{"A", "B", "C"})
	m.Train(nil)
	if m.Trained() {
		t.Errorf("expected sequences no longer than the order to record nothing")
	}

	m.Train([]string{"A", "B", "C", "D"})
	if got := m.Count([]string{"A", "B", "C", "D"}); got != 1 {
		t.Errorf("expected a single window of count 1, got %d", got)
	}
}

func TestTrainContextSumsMatch(t *testing.T) {
	m := newTestModel(t, 2)
	m.Train(benchmarkCorpus())

	for chain := range m.Chains() {
		_, total, ok := m.Transitions(chain.Context)
		if !ok {
			t.Fatalf("context %v yielded by Chains but not found", chain.Context)
		}
		if got := m.Count(chain.Context); got != total {
			t.Errorf("context %v: count %d does not match follower sum %d", chain.Context, got, total)
		}
	}
}

func TestConcurrentTrainExactCount(t *testing.T) {
	m := newTestModel(t, 2)
	const workers = 100

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			m.Train([]string{"A", "B", "C"})
		}()
	}
	wg.Wait()

	require.Equal(t, workers, m.Count([]string{"A", "B", "C"}))
	_, total, ok := m.Transitions([]string{"A", "B"})
	require.True(t, ok)
	require.Equal(t, workers, total)
}

func TestTrainAll(t *testing.T) {
	seqs := make([][]string, 0, 64)
	for i := 0; i < 64; i++ {
		seqs = append(seqs, scenario)
	}

	parallel := newTestModel(t, 2)
	require.NoError(t, parallel.TrainAll(context.Background(), seqs, 8))

	serial := newTestModel(t, 2)
	for _, seq := range seqs {
		serial.Train(seq)
	}

	for chain := range serial.Chains() {
		path := append(append([]string{}, chain.Context...), chain.Next)
		require.Equal(t, chain.Count, parallel.Count(path), "chain %v", path)
	}
	require.Equal(t, serial.Stats(), parallel.Stats())
}

func TestTrainAllCancelled(t *testing.T) {
	m := newTestModel(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.TrainAll(ctx, [][]string{scenario, scenario}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func BenchmarkTrain(b *testing.B) {
	corpus := benchmarkCorpus()

	for _, k := range []int{1, 2, 3, 4, 5} {
		b.Run(fmt.Sprintf("Order%d", k), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				m := newTestModel(b, k)
				m.Train(corpus)
			}
		})
	}
}

func BenchmarkTrainParallel(b *testing.B) {
	corpus := benchmarkCorpus()
	m := newTestModel(b, 2)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Train(corpus)
		}
	})
}
