/*
Package store persists trained markov models in a SQL database.

The schema mirrors a model's trie: every stored transition is a context,
the symbol that followed it and a frequency. Symbols and contexts are
interned in their own tables so repeated text is stored once across all
models. Any database/sql driver that speaks SQLite works; the cadence
binary uses modernc.org/sqlite by default and github.com/mattn/go-sqlite3
when built with the cgo_sqlite tag.

Symbols are converted to and from their stored text with a Codec, so a
Store can hold models of any symbol type that has a text form.

	db, _ := sql.Open("sqlite", "cadence.db")
	_ = store.SetupSchema(db)
	s, _ := store.New(db, store.StringCodec{})
	defer s.Close()

	_ = s.Save(ctx, "prose", model)
	loaded, _ := s.Load(ctx, "prose", order.Natural[string]())
*/
package store
