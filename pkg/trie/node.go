package trie

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/CTAG07/cadence/pkg/order"
)

// Node is a single element of a Trie. Its key is immutable once the node is
// reachable; its value and child list are guarded by a node-local lock and a
// version stamp. Readers take an optimistic snapshot and only fall back to
// the read lock when a writer was active during the read.
type Node[K, V any] struct {
	t      *Trie[K, V]
	key    K
	index  uint32
	parent uint32
	depth  int

	mu       sync.RWMutex
	stamp    atomic.Uint64 // odd while a write is in flight
	value    atomic.Pointer[V]
	children atomic.Pointer[[]uint32]
	detached atomic.Bool
}

// Key returns the symbol this node represents relative to its parent. The
// root's key is the zero value.
func (n *Node[K, V]) Key() K {
	return n.key
}

// Depth returns the number of edges between the root and n.
func (n *Node[K, V]) Depth() int {
	return n.depth
}

// IsRoot reports whether n is the root of its trie.
func (n *Node[K, V]) IsRoot() bool {
	return n.index == rootIndex
}

// Parent returns the node's parent, or nil for the root.
func (n *Node[K, V]) Parent() *Node[K, V] {
	if n.parent == noParent {
		return nil
	}
	return n.t.arena.at(n.parent)
}

// Path returns the keys from the root down to n.
func (n *Node[K, V]) Path() []K {
	path := make([]K, n.depth)
	for cur := n; !cur.IsRoot(); cur = cur.Parent() {
		path[cur.depth-1] = cur.key
	}
	return path
}

// Value returns the node's current value and whether one has ever been set.
func (n *Node[K, V]) Value() (V, bool) {
	var p *V
	if s := n.stamp.Load(); s&1 == 0 {
		p = n.value.Load()
		if n.stamp.Load() != s {
			p = n.lockedValue()
		}
	} else {
		p = n.lockedValue()
	}
	if p == nil {
		var zero V
		return zero, false
	}
	return *p, true
}

func (n *Node[K, V]) lockedValue() *V {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.value.Load()
}

// Children returns a snapshot of the node's children in key order. The
// returned slice is owned by the caller; later inserts and removals do not
// affect it.
func (n *Node[K, V]) Children() []*Node[K, V] {
	kids := n.snapshot()
	out := make([]*Node[K, V], len(kids))
	for i, idx := range kids {
		out[i] = n.t.arena.at(idx)
	}
	return out
}

// Len returns the number of children the node currently has.
func (n *Node[K, V]) Len() int {
	return len(n.snapshot())
}

// Child returns the child stored under key, if any.
func (n *Node[K, V]) Child(key K) (*Node[K, V], bool) {
	kids := n.snapshot()
	i, ok := n.search(kids, key)
	if !ok {
		return nil, false
	}
	return n.t.arena.at(kids[i]), true
}

// Attached reports whether n is still reachable from the root.
func (n *Node[K, V]) Attached() bool {
	for cur := n; ; cur = cur.Parent() {
		if cur.detached.Load() {
			return false
		}
		if cur.IsRoot() {
			return true
		}
	}
}

// snapshot returns the current child index list without copying it. The
// slice is never mutated after it is published, so callers may read it
// freely but must not modify it.
func (n *Node[K, V]) snapshot() []uint32 {
	if s := n.stamp.Load(); s&1 == 0 {
		p := n.children.Load()
		if n.stamp.Load() == s {
			return deref(p)
		}
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return deref(n.children.Load())
}

func (n *Node[K, V]) search(kids []uint32, key K) (int, bool) {
	return order.Search(len(kids), func(i int) K {
		return n.t.arena.at(kids[i]).key
	}, key, n.t.cmp)
}

func (n *Node[K, V]) lock() {
	n.mu.Lock()
	n.stamp.Add(1)
}

func (n *Node[K, V]) unlock() {
	n.stamp.Add(1)
	n.mu.Unlock()
}

// apply runs update against the node's value under its write lock.
func (n *Node[K, V]) apply(update func(V, bool) V) {
	n.lock()
	defer n.unlock()

	var cur V
	old := n.value.Load()
	if old != nil {
		cur = *old
	}
	next := update(cur, old != nil)
	n.value.Store(&next)
}

// childOrCreate returns the child for key. A missing child is inserted in
// sorted position with its first value, update(zero, false), already set, so
// no reader ever sees a child without a value; created reports that case.
// Only n's lock is taken.
func (n *Node[K, V]) childOrCreate(key K, update func(V, bool) V) (child *Node[K, V], created bool, err error) {
	if c, ok := n.Child(key); ok {
		return c, false, nil
	}

	n.lock()
	defer n.unlock()

	// Another writer may have inserted the key between the optimistic search
	// and acquiring the lock.
	kids := deref(n.children.Load())
	i, ok := n.search(kids, key)
	if ok {
		return n.t.arena.at(kids[i]), false, nil
	}

	idx, c, ok := n.t.arena.alloc()
	if !ok {
		return nil, false, ErrFull
	}
	c.t = n.t
	c.key = key
	c.index = idx
	c.parent = n.index
	c.depth = n.depth + 1
	var zero V
	first := update(zero, false)
	c.value.Store(&first)

	next := slices.Insert(slices.Clone(kids), i, idx)
	n.children.Store(&next)
	n.t.size.Add(1)
	return c, true, nil
}

// detachChild removes child from n's child list. It reports false if child is
// not currently listed under n.
func (n *Node[K, V]) detachChild(child *Node[K, V]) bool {
	n.lock()
	defer n.unlock()

	kids := deref(n.children.Load())
	i, ok := n.search(kids, child.key)
	if !ok || kids[i] != child.index {
		return false
	}
	next := slices.Delete(slices.Clone(kids), i, i+1)
	n.children.Store(&next)
	child.detached.Store(true)
	return true
}

func deref(p *[]uint32) []uint32 {
	if p == nil {
		return nil
	}
	return *p
}
