package trie

import (
	"errors"
	"iter"
	"sync/atomic"

	"github.com/CTAG07/cadence/pkg/order"
)

var (
	// ErrRootRemoval is returned when Remove is called with the root node.
	ErrRootRemoval = errors.New("trie: the root cannot be removed")
	// ErrDetached is returned when Remove is called with a node that is no
	// longer reachable from the root of the trie it was called on.
	ErrDetached = errors.New("trie: node is not attached to this trie")
	// ErrFull is returned by Put when a new node is needed but the trie has
	// already allocated the maximum number of nodes (2^32-1, counting
	// removed ones).
	ErrFull = errors.New("trie: node capacity exhausted")
)

// Trie is a generalized ordered prefix tree mapping key sequences to values.
// Each node stores exactly one key and one value; children are kept sorted
// under the comparator supplied to New, which makes every lookup a binary
// search per level.
//
// Get, Put and Children are safe for concurrent use. Remove is safe against
// concurrent readers but must not race with a Put that inserts a sibling under
// the same parent; callers that need that guarantee serialize Remove
// themselves.
type Trie[K, V any] struct {
	cmp   order.Compare[K]
	arena *arena[K, V]
	root  *Node[K, V]
	size  atomic.Int64
}

// New returns an empty trie ordered by cmp. The comparator must be consistent
// with equality.
func New[K, V any](cmp order.Compare[K]) *Trie[K, V] {
	t := &Trie[K, V]{
		cmp:   cmp,
		arena: newArena[K, V](),
	}
	idx, root, _ := t.arena.alloc()
	root.t = t
	root.index = idx
	root.parent = noParent
	t.root = root
	return t
}

// Root returns the root node. The root carries no key and is never removed.
func (t *Trie[K, V]) Root() *Node[K, V] {
	return t.root
}

// Len returns the number of nodes reachable from the root, excluding the
// root itself.
func (t *Trie[K, V]) Len() int {
	return int(t.size.Load())
}

// Get returns the node at the end of path. The lookup succeeds only when every
// element of path matched a child; a miss at any level reports false. An
// empty path returns the root.
func (t *Trie[K, V]) Get(path []K) (*Node[K, V], bool) {
	n, matched := t.Longest(path)
	if matched != len(path) {
		return nil, false
	}
	return n, true
}

// Longest returns the deepest node along path and the number of elements of
// path that were matched to reach it. A result of (root, 0) means not even the
// first element is present.
func (t *Trie[K, V]) Longest(path []K) (*Node[K, V], int) {
	n := t.root
	for i, key := range path {
		child, ok := n.Child(key)
		if !ok {
			return n, i
		}
		n = child
	}
	return n, len(path)
}

// Put walks path from the root, creating missing nodes in sorted position,
// and applies update to the value of every node it visits. update receives
// ok == false the first time a node is visited. An empty path does nothing.
// A node is published to readers only after its first value is set.
//
// Each step holds at most one node lock, so concurrent Puts on disjoint
// subtrees do not contend and concurrent Puts on the same path never lose an
// update.
//
// Put fails only with ErrFull. The nodes visited before the missing one keep
// their update in that case.
func (t *Trie[K, V]) Put(path []K, update func(old V, ok bool) V) error {
	n := t.root
	for _, key := range path {
		child, created, err := n.childOrCreate(key, update)
		if err != nil {
			return err
		}
		if !created {
			child.apply(update)
		}
		n = child
	}
	return nil
}

// Remove detaches n and its whole subtree from the trie.
func (t *Trie[K, V]) Remove(n *Node[K, V]) error {
	if n == nil || n.t != t || !n.Attached() {
		return ErrDetached
	}
	if n.IsRoot() {
		return ErrRootRemoval
	}
	if !n.Parent().detachChild(n) {
		return ErrDetached
	}
	t.size.Add(-int64(subtreeSize(n)))
	return nil
}

// All yields every node below the root in depth-first key order, together
// with its path. Each yielded path is a fresh slice. The walk reads child
// snapshots, so concurrent writers never block it; nodes inserted during the
// walk may or may not be visited.
func (t *Trie[K, V]) All() iter.Seq2[[]K, *Node[K, V]] {
	return func(yield func([]K, *Node[K, V]) bool) {
		walk(t.root, nil, yield)
	}
}

func walk[K, V any](n *Node[K, V], prefix []K, yield func([]K, *Node[K, V]) bool) bool {
	for _, child := range n.Children() {
		path := make([]K, len(prefix)+1)
		copy(path, prefix)
		path[len(prefix)] = child.key
		if !yield(path, child) {
			return false
		}
		if !walk(child, path, yield) {
			return false
		}
	}
	return true
}

func subtreeSize[K, V any](n *Node[K, V]) int {
	size := 1
	for _, child := range n.Children() {
		size += subtreeSize(child)
	}
	return size
}
