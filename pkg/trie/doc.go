/*
Package trie implements a generic, concurrency-safe ordered prefix tree.

Nodes are stored in an arena and refer to their parent and children by index,
so the tree holds no reference cycles. Every node carries its own lock and
version stamp: value reads and child searches are optimistic and retry under a
read lock only when they overlap a writer, while value updates and child
inserts lock a single node at a time. No operation ever holds locks on two
levels of the tree at once.
*/
package trie
