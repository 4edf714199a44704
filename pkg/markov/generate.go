package markov

import (
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/CTAG07/cadence/pkg/trie"
)

// maxReseeds bounds how many consecutive seed walks an iterator attempts
// before concluding that the model has nothing left to generate from.
const maxReseeds = 64

// generateOptions is used by Generate to configure an iterator.
type generateOptions[T any] struct {
	rng         *rand.Rand
	state       []T
	temperature float64
	topK        int
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in Generate and GenerateStream.
type GenerateOption[T any] func(*generateOptions[T])

// WithRand sets the random source of the iterator. The iterator takes
// ownership of r; it must not be shared with other goroutines.
func WithRand[T any](r *rand.Rand) GenerateOption[T] {
	return func(o *generateOptions[T]) { o.rng = r }
}

// WithSeed makes the iterator deterministic: two iterators over the same
// model contents with the same seed produce the same sequence.
func WithSeed[T any](seed uint64) GenerateOption[T] {
	return func(o *generateOptions[T]) {
		o.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithState starts generation from a known context instead of a random seed
// state. The state must have exactly Order symbols. If the context has no
// recorded transitions, the iterator falls back to a random seed state.
func WithState[T any](state []T) GenerateOption[T] {
	return func(o *generateOptions[T]) { o.state = slices.Clone(state) }
}

// WithTemperature adjusts the randomness of the symbol selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less frequent symbols more likely).
// Values < 1.0 decrease randomness (making more frequent symbols even more likely).
// A value of 0 or less results in deterministic selection (always choosing the most frequent symbol).
func WithTemperature[T any](t float64) GenerateOption[T] {
	return func(o *generateOptions[T]) { o.temperature = t }
}

// WithTopK restricts the selection pool to the `k` most frequent followers
// at each step. A value of 0 disables Top-K sampling.
func WithTopK[T any](k int) GenerateOption[T] {
	return func(o *generateOptions[T]) { o.topK = k }
}

func newGenerateOptions[T any](opts []GenerateOption[T]) *generateOptions[T] {
	options := &generateOptions[T]{
		temperature: 1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.rng == nil {
		options.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return options
}

// Generate returns a new iterator over an infinite, lazily produced sequence
// of symbols drawn from the model. Every call returns an independent iterator
// with its own random source and state; iterators only read the model, so
// any number of them may run concurrently with each other and with Train.
func (m *Model[T]) Generate(opts ...GenerateOption[T]) (*Iterator[T], error) {
	if !m.Trained() {
		return nil, ErrNotTrained
	}
	options := newGenerateOptions(opts)

	it := &Iterator[T]{
		m:           m,
		rng:         options.rng,
		temperature: options.temperature,
		topK:        options.topK,
		state:       make([]T, 0, m.order),
	}

	if options.state != nil {
		if len(options.state) != m.order {
			return nil, fmt.Errorf("%w: got %d symbols, want %d", ErrInvalidState, len(options.state), m.order)
		}
		it.state = append(it.state, options.state...)
		if node, ok := m.trie.Get(it.state); ok {
			it.node = node
		}
	}
	return it, nil
}

// Iterator walks a trained model. It is a small state machine:
//
//  1. Without a current context node, pick a seed state by descending Order
//     uniformly random edges from the root.
//  2. Pick a follower of the current context weighted by its count.
//  3. Shift the chosen follower into the state window and return it.
//  4. Look up the new context; if it has no followers, go back to 1.
//
// An Iterator is not safe for concurrent use; create one per goroutine.
type Iterator[T any] struct {
	m           *Model[T]
	rng         *rand.Rand
	temperature float64
	topK        int

	state []T
	seed  []T // scratch space for reseed
	node  *trie.Node[T, int]
	err   error
}

// Next returns the next generated symbol. The sequence never ends on its
// own; the only error is ErrNotTrained, returned when the model has no
// transitions left to walk (for example after an aggressive Prune).
func (it *Iterator[T]) Next() (T, error) {
	var zero T
	for reseeds := 0; ; {
		if it.node == nil {
			if reseeds == maxReseeds {
				return zero, ErrNotTrained
			}
			reseeds++
			if err := it.reseed(); err != nil {
				return zero, err
			}
			if it.node == nil {
				continue
			}
		}

		next, ok := it.choose(it.node.Children())
		if !ok {
			it.node = nil
			continue
		}

		copy(it.state, it.state[1:])
		it.state[len(it.state)-1] = next
		if node, found := it.m.trie.Get(it.state); found && node.Len() > 0 {
			it.node = node
		} else {
			it.node = nil
		}
		return next, nil
	}
}

// Take returns the next n symbols.
func (it *Iterator[T]) Take(n int) ([]T, error) {
	out := make([]T, 0, n)
	for len(out) < n {
		next, err := it.Next()
		if err != nil {
			return out, err
		}
		out = append(out, next)
	}
	return out, nil
}

// Seq adapts the iterator to a range-over-func sequence. The sequence ends
// when the loop breaks or Next fails; Err reports the failure.
func (it *Iterator[T]) Seq() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			next, err := it.Next()
			if err != nil {
				it.err = err
				return
			}
			if !yield(next) {
				return
			}
		}
	}
}

// Err returns the error that ended the last Seq, if any.
func (it *Iterator[T]) Err() error {
	return it.err
}

// State returns a copy of the current context window.
func (it *Iterator[T]) State() []T {
	return slices.Clone(it.state)
}

// reseed descends Order uniformly random edges from the root. The walk is
// built in scratch space and committed only when it ends on a context with
// followers; otherwise it.node stays nil and the state is left untouched.
// A walk can dead-end on a branch that a concurrent Put is still building or
// a concurrent Prune is removing.
func (it *Iterator[T]) reseed() error {
	if it.seed == nil {
		it.seed = make([]T, 0, it.m.order)
	}
	seed := it.seed[:0]
	node := it.m.trie.Root()
	for i := 0; i < it.m.order; i++ {
		kids := node.Children()
		if len(kids) == 0 {
			if node.IsRoot() {
				return ErrNotTrained
			}
			return nil
		}
		node = kids[it.rng.IntN(len(kids))]
		seed = append(seed, node.Key())
	}
	if node.Len() == 0 {
		return nil
	}
	it.state = append(it.state[:0], seed...)
	it.node = node
	return nil
}

// choose selects a follower among kids. With the default options this is a
// uniform integer draw in [0, total) followed by a scan that subtracts each
// child's count until the draw goes negative.
func (it *Iterator[T]) choose(kids []*trie.Node[T, int]) (T, bool) {
	var zero T
	if len(kids) == 0 {
		return zero, false
	}

	choices := make([]Transition[T], 0, len(kids))
	total := 0
	for _, child := range kids {
		count, _ := child.Value()
		if count <= 0 {
			continue
		}
		choices = append(choices, Transition[T]{Symbol: child.Key(), Count: count})
		total += count
	}
	if total == 0 {
		return zero, false
	}
	return chooseNext(it.rng, choices, total, it.temperature, it.topK), true
}

// chooseNext abstracts the follower selection logic from the iterator.
func chooseNext[T any](rng *rand.Rand, choices []Transition[T], total int, temperature float64, topK int) T {
	var next T

	// topK filtering
	if topK > 0 && topK < len(choices) {
		slices.SortStableFunc(choices, func(a, b Transition[T]) int {
			return b.Count - a.Count
		})
		choices = choices[:topK]
		total = 0
		for _, choice := range choices {
			total += choice.Count
		}
	}

	// temperature selection
	if temperature <= 0 { // Deterministic
		maxCount := -1
		for _, choice := range choices {
			if choice.Count > maxCount {
				maxCount = choice.Count
				next = choice.Symbol
			}
		}
	} else if temperature == 1.0 { // Standard weighted random
		draw := rng.IntN(total)
		for _, choice := range choices {
			draw -= choice.Count
			if draw < 0 {
				next = choice.Symbol
				break
			}
		}
	} else { // Temperature-based sampling
		logProbabilities := make([]float64, len(choices))
		maxLog := math.Inf(-1)
		for i, choice := range choices {
			lp := math.Log(float64(choice.Count)) / temperature
			logProbabilities[i] = lp
			if lp > maxLog {
				maxLog = lp
			}
		}
		var totalWeight float64
		weights := make([]float64, len(choices))
		for i, lp := range logProbabilities {
			w := math.Exp(lp - maxLog)
			weights[i] = w
			totalWeight += w
		}
		draw := rng.Float64() * totalWeight
		next = choices[len(choices)-1].Symbol
		for i, choice := range choices {
			draw -= weights[i]
			if draw < 0 {
				next = choice.Symbol
				break
			}
		}
	}
	return next
}
