package store

import (
	"context"
	"errors"
	"testing"

	"github.com/CTAG07/cadence/pkg/markov"
	"github.com/CTAG07/cadence/pkg/order"
)

// assertSameModel checks that every chain of want is present in got with the
// same count and that both models have the same shape.
func assertSameModel[T any](t *testing.T, want, got *markov.Model[T]) {
	t.Helper()
	if want.Stats() != got.Stats() {
		t.Errorf("stats mismatch: want %+v, got %+v", want.Stats(), got.Stats())
	}
	for chain := range want.Chains() {
		path := append(append([]T{}, chain.Context...), chain.Next)
		if c := got.Count(path); c != chain.Count {
			t.Errorf("chain %v: want count %d, got %d", path, chain.Count, c)
		}
	}
}

func TestSetupSchemaIsIdempotent(t *testing.T) {
	db, _ := setupTestDB(t)
	if err := SetupSchema(db); err != nil {
		t.Errorf("second SetupSchema call failed: %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	m := trainedModel(t)

	if err := s.Save(ctx, "fish", m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := s.Load(ctx, "fish", order.Natural[string]())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Order() != 2 {
		t.Errorf("expected order 2, got %d", loaded.Order())
	}
	assertSameModel(t, m, loaded)

	info, err := s.Info(ctx, "fish")
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Transitions != m.Stats().Transitions {
		t.Errorf("expected %d stored transitions, got %d", m.Stats().Transitions, info.Transitions)
	}
}

func TestSaveReplaces(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	m := trainedModel(t)

	if err := s.Save(ctx, "fish", m); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	m.Train([]string{"A", "B", "C"})
	if err := s.Save(ctx, "fish", m); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := s.Load(ctx, "fish", order.Natural[string]())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := loaded.Count([]string{"A", "B", "C"}); got != 3 {
		t.Errorf("expected saved count 3 after re-saving, got %d", got)
	}
}

func TestSaveAfterPrune(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	m := trainedModel(t)
	m.Prune(1)

	if err := s.Save(ctx, "pruned", m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := s.Load(ctx, "pruned", order.Natural[string]())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameModel(t, m, loaded)
}

func TestListAndRemove(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	m := trainedModel(t)

	for _, name := range []string{"beta", "alpha"} {
		if err := s.Save(ctx, name, m); err != nil {
			t.Fatalf("Save(%q) failed: %v", name, err)
		}
	}

	models, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(models) != 2 || models[0].Name != "alpha" || models[1].Name != "beta" {
		t.Fatalf("expected [alpha beta], got %+v", models)
	}

	if err = s.Remove(ctx, "alpha"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err = s.Info(ctx, "alpha"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound after removal, got %v", err)
	}

	// The shared symbols must still serve the remaining model.
	loaded, err := s.Load(ctx, "beta", order.Natural[string]())
	if err != nil {
		t.Fatalf("Load(beta) failed: %v", err)
	}
	assertSameModel(t, m, loaded)
}

func TestModelNotFound(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.Load(ctx, "missing", order.Natural[string]()); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Load: expected ErrModelNotFound, got %v", err)
	}
	if err := s.Remove(ctx, "missing"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Remove: expected ErrModelNotFound, got %v", err)
	}
}

func TestJSONCodec(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	s, err := New(db, JSONCodec[int]{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)

	m, err := markov.New(1, order.Natural[int]())
	if err != nil {
		t.Fatal(err)
	}
	m.Train([]int{1, 2, 3, 1, 2, 4, 10, 2})

	if err = s.Save(ctx, "ints", m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := s.Load(ctx, "ints", order.Natural[int]())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameModel(t, m, loaded)

	if got := loaded.Count([]int{1, 2}); got != 2 {
		t.Errorf("expected 1 -> 2 count 2, got %d", got)
	}
}
