package markov

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Train slides a window of Order+1 symbols across seq and records every
// context -> follower transition it sees. Sequences shorter than Order+1
// contribute nothing. Train is safe to call from many goroutines at once on
// the same model; counts are never lost regardless of interleaving.
//
// The only error is trie.ErrFull, once the model has allocated every node it
// can address; the windows before the failing one stay recorded.
func (m *Model[T]) Train(seq []T) error {
	if len(seq) <= m.order {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	width := m.order + 1
	for i := 0; i+width <= len(seq); i++ {
		if err := m.trie.Put(seq[i:i+width], increment); err != nil {
			return fmt.Errorf("failed to record window %d: %w", i, err)
		}
	}
	return nil
}

// TrainAll trains the model on every sequence in seqs using up to workers
// goroutines. A workers value of zero or less uses GOMAXPROCS. Training stops
// early if ctx is cancelled, in which case the context error is returned and
// the sequences already processed remain in the model.
func (m *Model[T]) TrainAll(ctx context.Context, seqs [][]T, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var windows int
	for _, seq := range seqs {
		if len(seq) > m.order {
			windows += len(seq) - m.order
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			return m.Train(seq)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Training completed",
		slog.Int("order", m.order),
		slog.Int("sequences_processed", len(seqs)),
		slog.Int("transitions_recorded", windows),
		slog.Int("workers", workers),
	)
	return nil
}
