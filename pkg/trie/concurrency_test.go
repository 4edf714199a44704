package trie

import (
	"fmt"
	"sync"
	"testing"

	"github.com/CTAG07/cadence/pkg/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentPutSamePath checks that racing writers on one path never lose
// an update.
func TestConcurrentPutSamePath(t *testing.T) {
	tr := New[string, int](order.Natural[string]())
	path := []string{"A", "B", "C"}
	const writers = 64
	const rounds = 50

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				tr.Put(path, increment)
			}
		}()
	}
	wg.Wait()

	for depth := 1; depth <= len(path); depth++ {
		n, ok := tr.Get(path[:depth])
		require.True(t, ok)
		v, _ := n.Value()
		require.Equal(t, writers*rounds, v, "count at depth %d", depth)
	}
	require.Equal(t, len(path), tr.Len())
}

// TestConcurrentPutSiblings inserts many co-prefixed paths at once and checks
// that the sibling list stays sorted and duplicate-free.
func TestConcurrentPutSiblings(t *testing.T) {
	tr := New[int, int](order.Natural[int]())
	const keys = 300

	var wg sync.WaitGroup
	wg.Add(keys * 2)
	for i := 0; i < keys; i++ {
		for dup := 0; dup < 2; dup++ {
			go func(id int) {
				defer wg.Done()
				tr.Put([]int{-1, id}, increment)
			}(i)
		}
	}
	wg.Wait()

	parent, ok := tr.Get([]int{-1})
	require.True(t, ok)
	v, _ := parent.Value()
	require.Equal(t, keys*2, v)

	kids := parent.Children()
	require.Len(t, kids, keys)
	for i, c := range kids {
		require.Equal(t, i, c.Key(), "children out of order")
		cv, _ := c.Value()
		require.Equal(t, 2, cv)
	}
}

// TestConcurrentReadersAndWriters runs lookups and child scans while writers
// grow the tree; it is meant to be run with -race.
func TestConcurrentReadersAndWriters(t *testing.T) {
	tr := New[string, int](order.Natural[string]())
	tr.Put([]string{"root"}, increment)

	const writers = 8
	const readers = 8
	const rounds = 200

	var wg sync.WaitGroup
	wg.Add(writers + readers)
	for w := 0; w < writers; w++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				tr.Put([]string{"root", fmt.Sprintf("w%d-%d", id, j%17)}, increment)
			}
		}(w)
	}
	for r := 0; r < readers; r++ {
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				n, ok := tr.Get([]string{"root"})
				if !ok {
					continue
				}
				prev := ""
				for _, c := range n.Children() {
					if prev != "" && c.Key() <= prev {
						t.Errorf("children out of order: %q after %q", c.Key(), prev)
						return
					}
					prev = c.Key()
					_, _ = c.Value()
				}
			}
		}()
	}
	wg.Wait()

	n, _ := tr.Get([]string{"root"})
	total := 0
	for _, c := range n.Children() {
		v, _ := c.Value()
		total += v
	}
	require.Equal(t, writers*rounds, total)
}

// TestRemoveWhileReading detaches subtrees while readers hold snapshots.
func TestRemoveWhileReading(t *testing.T) {
	tr := New[int, int](order.Natural[int]())
	for i := 0; i < 100; i++ {
		tr.Put([]int{i, i}, increment)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i += 2 {
			n, ok := tr.Get([]int{i})
			if assert.True(t, ok) {
				assert.NoError(t, tr.Remove(n))
			}
		}
	}()
	go func() {
		defer wg.Done()
		for round := 0; round < 20; round++ {
			for _, c := range tr.Root().Children() {
				_ = c.Children()
			}
		}
	}()
	wg.Wait()

	require.Equal(t, 50, tr.Root().Len())
	require.Equal(t, 100, tr.Len())
}

func BenchmarkPut(b *testing.B) {
	tr := New[int, int](order.Natural[int]())
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			tr.Put([]int{i % 64, (i / 64) % 64, i % 7}, increment)
			i++
		}
	})
}

func BenchmarkGet(b *testing.B) {
	tr := New[int, int](order.Natural[int]())
	for i := 0; i < 4096; i++ {
		tr.Put([]int{i % 64, (i / 64) % 64, i % 7}, increment)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = tr.Get([]int{i % 64, (i / 64) % 64})
			i++
		}
	})
}

// TestNewNodesCarryValue walks the trie while writers keep inserting fresh
// paths; every node a reader can reach must already hold its first value.
func TestNewNodesCarryValue(t *testing.T) {
	tr := New[int, int](order.Natural[int]())
	const writers = 4
	const paths = 2000

	done := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for path, n := range tr.All() {
					v, ok := n.Value()
					if !assert.True(t, ok, "node %v has no value", path) || !assert.Positive(t, v, "node %v", path) {
						return
					}
				}
			}
		}()
	}

	var writersWG sync.WaitGroup
	writersWG.Add(writers)
	for w := 0; w < writers; w++ {
		go func(id int) {
			defer writersWG.Done()
			for i := 0; i < paths; i++ {
				assert.NoError(t, tr.Put([]int{id, i, i % 3}, increment))
			}
		}(w)
	}
	writersWG.Wait()
	close(done)
	readers.Wait()

	require.Equal(t, writers*(1+paths*2), tr.Len())
}
