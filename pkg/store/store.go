package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrModelNotFound is returned when a named model is not stored.
var ErrModelNotFound = errors.New("store: model not found")

// ModelInfo holds the stored metadata of a model.
type ModelInfo struct {
	Id          int    `json:"id"`
	Name        string `json:"name"`
	Order       int    `json:"order"`
	Transitions int    `json:"transitions"`
}

// SetupSchema initializes the necessary tables in the provided database.
// This function should be called once on a new database before any other
// operations are performed. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaSymbols = `
CREATE TABLE IF NOT EXISTS cadence_symbols (
    symbol_id INTEGER PRIMARY KEY,
    symbol_text TEXT NOT NULL UNIQUE
);
`
		schemaContexts = `
CREATE TABLE IF NOT EXISTS cadence_contexts (
	context_id INTEGER PRIMARY KEY,
	context_text TEXT NOT NULL UNIQUE
);
`
		schemaModels = `
CREATE TABLE IF NOT EXISTS cadence_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS cadence_transitions (
    model_id INTEGER NOT NULL,
    context_id INTEGER NOT NULL,
    next_symbol_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_id, context_id, next_symbol_id)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, schema := range []string{schemaSymbols, schemaContexts, schemaModels, schemaTransitions} {
		if _, err = tx.Exec(schema); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store saves and loads models whose symbols are converted with a Codec.
// It holds prepared SQL statements for efficient database interaction and
// is safe for concurrent use.
type Store[T any] struct {
	db                     *sql.DB
	codec                  Codec[T]
	stmtGetModelInfo       *sql.Stmt
	stmtGetModels          *sql.Stmt
	stmtUpsertModel        *sql.Stmt
	stmtClearModel         *sql.Stmt
	stmtDeleteModel        *sql.Stmt
	stmtGetOrInsertSymbol  *sql.Stmt
	stmtGetOrInsertContext *sql.Stmt
	stmtInsertTransition   *sql.Stmt
	stmtModelTransitions   *sql.Stmt
	logger                 *slog.Logger
}

// New creates and returns a new Store. It pre-compiles all necessary SQL
// statements, returning an error if any preparation fails. SetupSchema must
// have been called on db beforehand.
func New[T any](db *sql.DB, codec Codec[T]) (*Store[T], error) {
	s := &Store[T]{
		db:     db,
		codec:  codec,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	statements := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetModelInfo, `SELECT m.model_id, m.model_order, (SELECT COUNT(*) FROM cadence_transitions t WHERE t.model_id = m.model_id) FROM cadence_models m WHERE m.model_name = ?;`},
		{&s.stmtGetModels, `SELECT m.model_id, m.model_name, m.model_order, (SELECT COUNT(*) FROM cadence_transitions t WHERE t.model_id = m.model_id) FROM cadence_models m ORDER BY m.model_name;`},
		{&s.stmtUpsertModel, `INSERT INTO cadence_models (model_name, model_order) VALUES (?, ?) ON CONFLICT(model_name) DO UPDATE SET model_order=excluded.model_order RETURNING model_id;`},
		{&s.stmtClearModel, `DELETE FROM cadence_transitions WHERE model_id = ?;`},
		{&s.stmtDeleteModel, `DELETE FROM cadence_models WHERE model_id = ?;`},
		{&s.stmtGetOrInsertSymbol, `INSERT INTO cadence_symbols (symbol_text) VALUES (?) ON CONFLICT(symbol_text) DO UPDATE SET symbol_text=excluded.symbol_text RETURNING symbol_id;`},
		{&s.stmtGetOrInsertContext, `INSERT INTO cadence_contexts (context_text) VALUES (?) ON CONFLICT(context_text) DO UPDATE SET context_text=excluded.context_text RETURNING context_id;`},
		{&s.stmtInsertTransition, `INSERT INTO cadence_transitions (model_id, context_id, next_symbol_id, frequency) VALUES (?, ?, ?, ?) ON CONFLICT(model_id, context_id, next_symbol_id) DO UPDATE SET frequency = frequency + excluded.frequency;`},
		{&s.stmtModelTransitions, `
SELECT c.context_text, t.next_symbol_id, sym.symbol_text, t.frequency
FROM cadence_transitions t
JOIN cadence_contexts c ON c.context_id = t.context_id
JOIN cadence_symbols sym ON sym.symbol_id = t.next_symbol_id
WHERE t.model_id = ?
ORDER BY t.context_id, t.next_symbol_id;`},
	}

	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*st.dst = stmt
	}

	return s, nil
}

// Close releases all prepared SQL statements held by the Store. It does not
// close the underlying database.
func (s *Store[T]) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetModelInfo,
		s.stmtGetModels,
		s.stmtUpsertModel,
		s.stmtClearModel,
		s.stmtDeleteModel,
		s.stmtGetOrInsertSymbol,
		s.stmtGetOrInsertContext,
		s.stmtInsertTransition,
		s.stmtModelTransitions,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store[T]) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}
