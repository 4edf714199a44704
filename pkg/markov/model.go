package markov

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/CTAG07/cadence/pkg/order"
	"github.com/CTAG07/cadence/pkg/trie"
)

var (
	// ErrInvalidOrder is returned by New when the order is not positive.
	ErrInvalidOrder = errors.New("markov: order must be positive")
	// ErrNotTrained is returned when generating from a model that has no
	// recorded transitions.
	ErrNotTrained = errors.New("markov: model not trained")
	// ErrInvalidState is returned when a generation seed state does not have
	// exactly Order symbols.
	ErrInvalidState = errors.New("markov: seed state length does not match model order")
	// ErrOrderMismatch is returned when importing chains recorded with a
	// different order.
	ErrOrderMismatch = errors.New("markov: order mismatch")
)

// Transition is a possible next symbol for a context, together with the
// number of times it was observed after that context.
type Transition[T any] struct {
	Symbol T
	Count  int
}

// Model is an order-k Markov model backed by a trie of transition counts.
//
// Every training window of Order+1 symbols is stored as a path in the trie.
// Each node along the path counts how many windows passed through it, so the
// node reached by a context holds the number of times that context was
// observed and its children hold the per-follower counts.
type Model[T any] struct {
	order  int
	cmp    order.Compare[T]
	trie   *trie.Trie[T, int]
	mu     sync.RWMutex // held shared by writers that only add, exclusively by Prune
	logger *slog.Logger
}

// New creates an empty model that conditions on the previous `k` symbols,
// ordering symbols with cmp.
func New[T any](k int, cmp order.Compare[T]) (*Model[T], error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOrder, k)
	}
	return &Model[T]{
		order:  k,
		cmp:    cmp,
		trie:   trie.New[T, int](cmp),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the Model. By default, all logs are discarded.
func (m *Model[T]) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Order returns the context length of the model.
func (m *Model[T]) Order() int {
	return m.order
}

// Compare returns the symbol ordering the model was built with.
func (m *Model[T]) Compare() order.Compare[T] {
	return m.cmp
}

// Trained reports whether the model holds at least one transition.
func (m *Model[T]) Trained() bool {
	return m.trie.Root().Len() > 0
}

// Transitions returns every recorded follower of context, in symbol order, and
// the sum of their counts. It reports false if the context was never observed.
func (m *Model[T]) Transitions(context []T) ([]Transition[T], int, bool) {
	node, ok := m.trie.Get(context)
	if !ok {
		return nil, 0, false
	}
	kids := node.Children()
	out := make([]Transition[T], 0, len(kids))
	total := 0
	for _, child := range kids {
		count, _ := child.Value()
		out = append(out, Transition[T]{Symbol: child.Key(), Count: count})
		total += count
	}
	return out, total, true
}

// Count returns how many times path was observed as the start of a training
// window. Paths of length Order+1 give the count of a single transition;
// shorter paths give the count of a (partial) context.
func (m *Model[T]) Count(path []T) int {
	node, ok := m.trie.Get(path)
	if !ok || node.IsRoot() {
		return 0
	}
	count, _ := node.Value()
	return count
}

// Observe records that next followed context count times. It is the
// low-level counterpart of Train, used when replaying stored chains.
func (m *Model[T]) Observe(context []T, next T, count int) error {
	if len(context) != m.order {
		return fmt.Errorf("%w: context has %d symbols, model order is %d", ErrOrderMismatch, len(context), m.order)
	}
	if count <= 0 {
		return fmt.Errorf("markov: transition count must be positive, got %d", count)
	}

	path := make([]T, 0, m.order+1)
	path = append(path, context...)
	path = append(path, next)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.trie.Put(path, func(v int, _ bool) int { return v + count }); err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

func increment(v int, ok bool) int {
	if !ok {
		return 1
	}
	return v + 1
}
