package trie

import (
	"sync"
	"sync/atomic"
)

const (
	chunkBits = 10
	chunkSize = 1 << chunkBits
	chunkMask = chunkSize - 1

	// rootIndex is the arena slot of the root node.
	rootIndex uint32 = 0
	// noParent marks the root's parent slot.
	noParent = ^uint32(0)
	// maxNodes is the number of slots a trie can ever hand out. noParent is
	// reserved, so every valid index is below it.
	maxNodes = noParent
)

type chunk[K, V any] [chunkSize]Node[K, V]

// arena stores every node of a trie in fixed-size chunks addressed by a
// stable uint32 index. The chunk directory grows on demand: a new directory
// is copied and published under growMu, while readers load it without
// locking. Installed chunks never move, so *Node handles stay valid across
// growth. Slots are never reused: a removed subtree keeps its slots so that
// outstanding *Node handles stay valid.
type arena[K, V any] struct {
	next  atomic.Uint32
	limit uint32

	growMu sync.Mutex
	dir    atomic.Pointer[[]*chunk[K, V]]
}

func newArena[K, V any]() *arena[K, V] {
	return &arena[K, V]{limit: maxNodes}
}

// alloc reserves the next free slot and returns its index and node. It
// reports false once the arena has handed out limit slots.
func (a *arena[K, V]) alloc() (uint32, *Node[K, V], bool) {
	idx, ok := a.reserve()
	if !ok {
		return 0, nil, false
	}
	c := int(idx >> chunkBits)
	if dir := a.dir.Load(); dir != nil && c < len(*dir) && (*dir)[c] != nil {
		return idx, &(*dir)[c][idx&chunkMask], true
	}
	return idx, &a.install(c)[idx&chunkMask], true
}

func (a *arena[K, V]) reserve() (uint32, bool) {
	for {
		idx := a.next.Load()
		if idx >= a.limit {
			return 0, false
		}
		if a.next.CompareAndSwap(idx, idx+1) {
			return idx, true
		}
	}
}

// install makes sure chunk c exists and returns it.
func (a *arena[K, V]) install(c int) *chunk[K, V] {
	a.growMu.Lock()
	defer a.growMu.Unlock()

	var cur []*chunk[K, V]
	if p := a.dir.Load(); p != nil {
		cur = *p
	}
	if c < len(cur) && cur[c] != nil {
		return cur[c]
	}

	size := len(cur)
	if c >= size {
		size = max(c+1, 2*size)
	}
	next := make([]*chunk[K, V], size)
	copy(next, cur)
	next[c] = new(chunk[K, V])
	a.dir.Store(&next)
	return next[c]
}

// at resolves an index handed out by alloc.
func (a *arena[K, V]) at(idx uint32) *Node[K, V] {
	return &(*a.dir.Load())[idx>>chunkBits][idx&chunkMask]
}
