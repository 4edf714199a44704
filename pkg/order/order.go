// Package order provides the total-order comparators shared by the trie and
// the Markov model. A Compare function returns a negative number when a < b,
// zero when a == b and a positive number when a > b. Comparators must be
// consistent with equality; the trie relies on zero meaning "same key".
package order

import "cmp"

// Compare is a total order over T.
type Compare[T any] func(a, b T) int

// Natural returns the natural ordering of an ordered type.
func Natural[T cmp.Ordered]() Compare[T] {
	return cmp.Compare[T]
}

// Reverse inverts an ordering.
func Reverse[T any](c Compare[T]) Compare[T] {
	return func(a, b T) int {
		return c(b, a)
	}
}

// By orders values by a derived key.
func By[T any, K cmp.Ordered](key func(T) K) Compare[T] {
	return func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	}
}

// Then breaks ties of c with next.
func Then[T any](c, next Compare[T]) Compare[T] {
	return func(a, b T) int {
		if r := c(a, b); r != 0 {
			return r
		}
		return next(a, b)
	}
}

// Lexicographic orders sequences element by element, shorter sequences
// first when one is a prefix of the other.
func Lexicographic[T any](c Compare[T]) Compare[[]T] {
	return func(a, b []T) int {
		n := min(len(a), len(b))
		for i := 0; i < n; i++ {
			if r := c(a[i], b[i]); r != 0 {
				return r
			}
		}
		return cmp.Compare(len(a), len(b))
	}
}

// Search returns the position of target among n sorted elements, where at(i)
// yields the i-th element. If target is absent, found is false and i is the
// position where it would be inserted to keep the order.
func Search[T any](n int, at func(int) T, target T, c Compare[T]) (i int, found bool) {
	lo, hi := 0, n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		r := c(at(mid), target)
		switch {
		case r == 0:
			return mid, true
		case r < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}
