package markov

// Stats holds aggregated statistics for a single Markov model.
type Stats struct {
	Order        int `json:"order"`
	Contexts     int `json:"contexts"`     // The number of distinct contexts with at least one follower.
	Transitions  int `json:"transitions"`  // The number of unique context->follower links.
	Observations int `json:"observations"` // The sum of all link counts; the total number of trained windows.
	Starters     int `json:"starters"`     // The number of distinct symbols that begin a context.
	Nodes        int `json:"nodes"`        // The number of trie nodes backing the model.
}

// Stats returns a snapshot of statistics for the model. It walks the whole
// trie, so its cost grows with the model size.
func (m *Model[T]) Stats() Stats {
	stats := Stats{
		Order:    m.order,
		Starters: m.trie.Root().Len(),
		Nodes:    m.trie.Len(),
	}
	for _, node := range m.trie.All() {
		switch node.Depth() {
		case m.order:
			if node.Len() > 0 {
				stats.Contexts++
			}
		case m.order + 1:
			count, ok := node.Value()
			if !ok || count <= 0 {
				continue
			}
			stats.Transitions++
			stats.Observations += count
		}
	}
	return stats
}
