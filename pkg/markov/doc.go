/*
Package markov provides a concurrency-safe, trie-backed order-k Markov model
over any totally ordered symbol type.

A Model learns, from example sequences, how often each symbol follows each
context of k symbols. Training may run from many goroutines at once against
the same model. Generate returns independent iterators that perform weighted
random walks over the learned transitions and produce unbounded sequences of
symbols; each iterator owns its random source and may run on its own
goroutine without coordination.
*/
package markov
