package markov

import (
	"context"
	"log/slog"
)

// GenerateStream starts a new iterator and returns a read-only channel of its
// symbols. This allows for processing generated symbols one at a time, which
// is useful for real-time consumers. The channel is closed after n symbols,
// when the context is cancelled, or when the iterator fails. An n of zero or
// less streams until the context is cancelled.
func (m *Model[T]) GenerateStream(ctx context.Context, n int, opts ...GenerateOption[T]) (<-chan T, error) {
	it, err := m.Generate(opts...)
	if err != nil {
		return nil, err
	}

	symbols := make(chan T)

	go func() {
		defer close(symbols)

		for generated := 0; n <= 0 || generated < n; generated++ {
			select {
			case <-ctx.Done():
				m.logger.DebugContext(ctx, "Generation stream cancelled by context",
					slog.Int("generated_length", generated),
				)
				return
			default:
				// continue
			}

			next, err := it.Next()
			if err != nil {
				m.logger.ErrorContext(ctx, "Generation stream stopped",
					slog.Int("generated_length", generated),
					slog.Any("error", err),
				)
				return
			}

			select {
			case <-ctx.Done():
				return
			case symbols <- next:
			}
		}
	}()

	return symbols, nil
}
