// Package text turns prose into string symbol sequences for a markov.Model
// and renders generated symbols back into prose.
//
// Words and punctuation marks are both symbols, so sentence boundaries are
// learned as ordinary transitions. A Tokenizer is configured with functional
// options; the defaults split on words and the punctuation marks . , ! ? ;
// and treat . ! ? as the end of a sentence.
package text
