package store

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/cadence/pkg/markov"
	"github.com/CTAG07/cadence/pkg/order"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a new SQLite database and a string Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store[string]) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := New(db, StringCodec{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// trainedModel returns an order-2 model trained on a short corpus.
func trainedModel(t *testing.T) *markov.Model[string] {
	t.Helper()
	m, err := markov.New(2, order.Natural[string]())
	if err != nil {
		t.Fatalf("markov.New() error = %v", err)
	}
	m.Train(strings.Fields("one fish two fish . red fish blue fish ."))
	m.Train(strings.Fields("A B C A B D A B C"))
	return m
}
