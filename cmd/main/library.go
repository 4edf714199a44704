package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/cadence/pkg/markov"
	"github.com/CTAG07/cadence/pkg/order"
	"github.com/CTAG07/cadence/pkg/store"
	"github.com/CTAG07/cadence/pkg/text"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrModelExists is returned when creating a model whose name is taken.
	ErrModelExists = errors.New("model already exists")
	// ErrInvalidModelName is returned for empty names or names containing '/'.
	ErrInvalidModelName = errors.New("invalid model name")
)

// Library keeps trained string models in memory and persists them to the
// store after every change. Models are loaded lazily on first use.
type Library struct {
	store     *store.Store[string]
	tokenizer *text.Tokenizer
	workers   int
	logger    *slog.Logger

	mu     sync.Mutex
	models map[string]*markov.Model[string]

	// saveMu orders snapshots so a later save always sees every change an
	// earlier one saw.
	saveMu sync.Mutex
}

// NewLibrary creates a library over s. Training fans sentences out to
// `workers` goroutines; zero or less uses GOMAXPROCS.
func NewLibrary(s *store.Store[string], tokenizer *text.Tokenizer, workers int, logger *slog.Logger) *Library {
	return &Library{
		store:     s,
		tokenizer: tokenizer,
		workers:   workers,
		logger:    logger,
		models:    make(map[string]*markov.Model[string]),
	}
}

// Tokenizer returns the tokenizer used to split training text and render
// generated symbols.
func (l *Library) Tokenizer() *text.Tokenizer {
	return l.tokenizer
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/?#") {
		return fmt.Errorf("%w: %q", ErrInvalidModelName, name)
	}
	return nil
}

// List returns the metadata of every stored model.
func (l *Library) List(ctx context.Context) ([]store.ModelInfo, error) {
	return l.store.List(ctx)
}

// Info returns the stored metadata of a model.
func (l *Library) Info(ctx context.Context, name string) (store.ModelInfo, error) {
	return l.store.Info(ctx, name)
}

// Create stores a new, untrained model.
func (l *Library) Create(ctx context.Context, name string, k int) (store.ModelInfo, error) {
	if err := validateName(name); err != nil {
		return store.ModelInfo{}, err
	}
	if _, err := l.store.Info(ctx, name); err == nil {
		return store.ModelInfo{}, fmt.Errorf("%w: %q", ErrModelExists, name)
	} else if !errors.Is(err, store.ErrModelNotFound) {
		return store.ModelInfo{}, err
	}

	m, err := markov.New(k, order.Natural[string]())
	if err != nil {
		return store.ModelInfo{}, err
	}
	m.SetLogger(l.logger.With(slog.String("model_name", name)))

	if err = l.save(ctx, name, m); err != nil {
		return store.ModelInfo{}, err
	}
	l.mu.Lock()
	l.models[name] = m
	loadedModels.Set(float64(len(l.models)))
	l.mu.Unlock()

	return l.store.Info(ctx, name)
}

// Get returns the model stored under name, loading it on first use.
func (l *Library) Get(ctx context.Context, name string) (*markov.Model[string], error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.models[name]; ok {
		return m, nil
	}
	m, err := l.store.Load(ctx, name, order.Natural[string]())
	if err != nil {
		return nil, err
	}
	m.SetLogger(l.logger.With(slog.String("model_name", name)))
	l.models[name] = m
	loadedModels.Set(float64(len(l.models)))
	return m, nil
}

// Remove deletes a model from memory and from the store.
func (l *Library) Remove(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Remove(ctx, name); err != nil {
		return err
	}
	delete(l.models, name)
	loadedModels.Set(float64(len(l.models)))
	return nil
}

// Train tokenizes r into sentences, trains the named model on them and
// persists the result. It returns the number of windows recorded.
func (l *Library) Train(ctx context.Context, name string, r io.Reader) (int, error) {
	sentences, err := l.tokenizer.Sentences(r)
	if err != nil {
		return 0, fmt.Errorf("tokenizer error: %w", err)
	}
	return l.trainSentences(ctx, name, sentences)
}

// TrainFiles tokenizes every file concurrently and trains the named model on
// all of their sentences.
func (l *Library) TrainFiles(ctx context.Context, name string, paths []string) (int, error) {
	perFile := make([][][]string, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(l.workerLimit())
	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func(f *os.File) {
				_ = f.Close()
			}(f)
			sentences, err := l.tokenizer.Sentences(f)
			if err != nil {
				return fmt.Errorf("failed to tokenize %s: %w", path, err)
			}
			perFile[i] = sentences
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var sentences [][]string
	for _, s := range perFile {
		sentences = append(sentences, s...)
	}
	return l.trainSentences(ctx, name, sentences)
}

func (l *Library) workerLimit() int {
	if l.workers > 0 {
		return l.workers
	}
	return -1
}

func (l *Library) trainSentences(ctx context.Context, name string, sentences [][]string) (int, error) {
	start := time.Now()
	m, err := l.Get(ctx, name)
	if err != nil {
		return 0, err
	}

	if err = m.TrainAll(ctx, sentences, l.workers); err != nil {
		return 0, err
	}
	if err = l.save(ctx, name, m); err != nil {
		return 0, err
	}

	windows := 0
	for _, s := range sentences {
		if len(s) > m.Order() {
			windows += len(s) - m.Order()
		}
	}
	trainedWindowsTotal.WithLabelValues(name).Add(float64(windows))
	trainDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return windows, nil
}

// Generate draws n symbols from the named model. Generation stops early with
// the context error if ctx is cancelled.
func (l *Library) Generate(ctx context.Context, name string, n int, opts ...markov.GenerateOption[string]) ([]string, error) {
	m, err := l.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	it, err := m.Generate(opts...)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, n)
	for len(out) < n {
		if err = ctx.Err(); err != nil {
			return out, err
		}
		next, err := it.Next()
		if err != nil {
			return out, err
		}
		out = append(out, next)
	}
	generatedSymbolsTotal.WithLabelValues(name).Add(float64(len(out)))
	return out, nil
}

// Prune removes transitions seen minCount times or fewer from the named
// model and persists the result.
func (l *Library) Prune(ctx context.Context, name string, minCount int) (int, error) {
	m, err := l.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	removed := m.Prune(minCount)
	if err = l.save(ctx, name, m); err != nil {
		return removed, err
	}
	prunedTransitionsTotal.WithLabelValues(name).Add(float64(removed))
	return removed, nil
}

// Export writes the named model as JSON to w.
func (l *Library) Export(ctx context.Context, name string, w io.Writer) error {
	m, err := l.Get(ctx, name)
	if err != nil {
		return err
	}
	return m.Export(w)
}

// Import reads a JSON model from r into the named model. Counts are merged
// into an existing model; otherwise a new model is created with the order
// recorded in the export.
func (l *Library) Import(ctx context.Context, name string, r io.Reader) error {
	if err := validateName(name); err != nil {
		return err
	}

	m, err := l.Get(ctx, name)
	switch {
	case err == nil:
		if err = m.Import(r); err != nil {
			return err
		}
	case errors.Is(err, store.ErrModelNotFound):
		if m, err = markov.Load(r, order.Natural[string]()); err != nil {
			return err
		}
		m.SetLogger(l.logger.With(slog.String("model_name", name)))
		l.mu.Lock()
		l.models[name] = m
		loadedModels.Set(float64(len(l.models)))
		l.mu.Unlock()
	default:
		return err
	}
	return l.save(ctx, name, m)
}

// Stats returns statistics for the named model.
func (l *Library) Stats(ctx context.Context, name string) (markov.Stats, error) {
	m, err := l.Get(ctx, name)
	if err != nil {
		return markov.Stats{}, err
	}
	return m.Stats(), nil
}

func (l *Library) save(ctx context.Context, name string, m *markov.Model[string]) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	if err := l.store.Save(ctx, name, m); err != nil {
		return fmt.Errorf("failed to persist model %q: %w", name, err)
	}
	return nil
}

// Loaded returns the names of the models currently held in memory, sorted.
func (l *Library) Loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Sorted(maps.Keys(l.models))
}
