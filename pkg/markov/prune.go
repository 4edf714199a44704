package markov

import (
	"log/slog"

	"github.com/CTAG07/cadence/pkg/trie"
)

// Prune removes every transition that was observed `minCount` times or fewer.
// This is useful for reducing the size of a model by removing rare, and often
// noisy, transitions. Context counts are reduced by the removed
// observations, and contexts left without any follower are removed as well.
// It returns the number of transitions removed.
//
// Prune waits for in-flight Train, Observe and Import calls and blocks new
// ones until it finishes. Running iterators are unaffected apart from no
// longer seeing the removed transitions.
func (m *Model[T]) Prune(minCount int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rare []*trie.Node[T, int]
	for _, node := range m.trie.All() {
		if node.Depth() != m.order+1 {
			continue
		}
		if count, _ := node.Value(); count <= minCount {
			rare = append(rare, node)
		}
	}

	removed := 0
	for _, node := range rare {
		count, _ := node.Value()
		parent := node.Parent()
		if err := m.trie.Remove(node); err != nil {
			continue
		}
		removed++

		// Every ancestor counted the removed observations once. The path
		// exists, so Put allocates nothing and cannot fail.
		_ = m.trie.Put(parent.Path(), func(v int, _ bool) int { return v - count })

		for p := parent; !p.IsRoot() && p.Len() == 0; {
			up := p.Parent()
			if err := m.trie.Remove(p); err != nil {
				break
			}
			p = up
		}
	}

	m.logger.Info("Model pruned",
		slog.Int("order", m.order),
		slog.Int("min_count", minCount),
		slog.Int("transitions_removed", removed),
	)
	return removed
}
