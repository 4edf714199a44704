package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/CTAG07/cadence/pkg/order"
)

// Chain is a single recorded link of the model: a context, the symbol that
// followed it and how many times it did.
type Chain[T any] struct {
	Context []T `json:"context"`
	Next    T   `json:"next"`
	Count   int `json:"count"`
}

// ExportedModel is the serializable representation of a trained model,
// used for JSON-based import and export.
type ExportedModel[T any] struct {
	Order  int        `json:"order"`
	Chains []Chain[T] `json:"chains"`
}

// Chains yields every recorded link of the model in context order. Links
// without a positive count are skipped, so the result always imports cleanly.
func (m *Model[T]) Chains() iter.Seq[Chain[T]] {
	return func(yield func(Chain[T]) bool) {
		for path, node := range m.trie.All() {
			if len(path) != m.order+1 {
				continue
			}
			count, ok := node.Value()
			if !ok || count <= 0 {
				continue
			}
			chain := Chain[T]{
				Context: path[:m.order],
				Next:    path[m.order],
				Count:   count,
			}
			if !yield(chain) {
				return
			}
		}
	}
}

// Export serializes the model into JSON and writes it to w. Symbols are
// encoded with encoding/json, so T must be JSON-representable.
func (m *Model[T]) Export(w io.Writer) error {
	exported := ExportedModel[T]{Order: m.order, Chains: []Chain[T]{}}
	for chain := range m.Chains() {
		exported.Chains = append(exported.Chains, chain)
	}

	m.logger.Info("Model exported",
		slog.Int("order", m.order),
		slog.Int("chains_exported", len(exported.Chains)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// Import reads a JSON model written by Export and merges it into m: counts of
// chains that already exist are added together. The exported order must
// match the model's order.
func (m *Model[T]) Import(r io.Reader) error {
	var imported ExportedModel[T]
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return fmt.Errorf("failed to decode json model: %w", err)
	}
	if imported.Order != m.order {
		return fmt.Errorf("%w: model has order %d, import has order %d", ErrOrderMismatch, m.order, imported.Order)
	}
	return m.merge(imported.Chains)
}

// Load builds a new model from a JSON export.
func Load[T any](r io.Reader, cmp order.Compare[T]) (*Model[T], error) {
	var imported ExportedModel[T]
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return nil, fmt.Errorf("failed to decode json model: %w", err)
	}
	m, err := New(imported.Order, cmp)
	if err != nil {
		return nil, err
	}
	if err = m.merge(imported.Chains); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model[T]) merge(chains []Chain[T]) error {
	// Validate everything first so a bad export leaves the model untouched.
	for i, chain := range chains {
		if len(chain.Context) != m.order {
			return fmt.Errorf("import consistency error at chain %d: %w: context has %d symbols", i, ErrOrderMismatch, len(chain.Context))
		}
		if chain.Count <= 0 {
			return fmt.Errorf("import consistency error at chain %d: non-positive count %d", i, chain.Count)
		}
	}
	for i, chain := range chains {
		if err := m.Observe(chain.Context, chain.Next, chain.Count); err != nil {
			return fmt.Errorf("import consistency error at chain %d: %w", i, err)
		}
	}
	m.logger.Info("Model imported",
		slog.Int("order", m.order),
		slog.Int("chains_merged", len(chains)),
	)
	return nil
}
