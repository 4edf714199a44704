package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/CTAG07/cadence/pkg/markov"
	"github.com/CTAG07/cadence/pkg/order"
)

// List retrieves metadata for all stored models, ordered by name.
func (s *Store[T]) List(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var models []ModelInfo
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.Order, &model.Transitions); err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// Info retrieves the metadata for a single model specified by name.
func (s *Store[T]) Info(ctx context.Context, name string) (ModelInfo, error) {
	info := ModelInfo{Name: name}
	err := s.stmtGetModelInfo.QueryRowContext(ctx, name).Scan(&info.Id, &info.Order, &info.Transitions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ModelInfo{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
		}
		return ModelInfo{}, err
	}
	return info, nil
}

// Save writes every transition of m under name, replacing whatever was
// stored under that name before. The write happens in a single transaction.
// Training m while it is saved is allowed, but the stored copy may then hold
// only part of the concurrent updates.
func (s *Store[T]) Save(ctx context.Context, name string, m *markov.Model[T]) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// All transaction-specific statements will also be closed with this or the .Commit()
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID int
	if err = tx.StmtContext(ctx, s.stmtUpsertModel).QueryRowContext(ctx, name, m.Order()).Scan(&modelID); err != nil {
		return fmt.Errorf("could not upsert model %q: %w", name, err)
	}
	if _, err = tx.StmtContext(ctx, s.stmtClearModel).ExecContext(ctx, modelID); err != nil {
		return fmt.Errorf("failed to clear transitions for model %d: %w", modelID, err)
	}

	stmtSymbol := tx.StmtContext(ctx, s.stmtGetOrInsertSymbol)
	stmtContext := tx.StmtContext(ctx, s.stmtGetOrInsertContext)
	stmtTransition := tx.StmtContext(ctx, s.stmtInsertTransition)

	symbolCache := make(map[string]int)
	contextCache := make(map[string]int)

	symbolID := func(symbol T) (int, error) {
		text, err := s.codec.Encode(symbol)
		if err != nil {
			return 0, err
		}
		if id, ok := symbolCache[text]; ok {
			return id, nil
		}
		var id int
		if err = stmtSymbol.QueryRowContext(ctx, text).Scan(&id); err != nil {
			return 0, fmt.Errorf("sql insert symbol error for %q: %w", text, err)
		}
		symbolCache[text] = id
		return id, nil
	}

	var saved int
	ids := make([]string, m.Order())
	for chain := range m.Chains() {
		for i, symbol := range chain.Context {
			id, err := symbolID(symbol)
			if err != nil {
				return err
			}
			ids[i] = strconv.Itoa(id)
		}
		contextText := strings.Join(ids, " ")

		contextID, ok := contextCache[contextText]
		if !ok {
			if err = stmtContext.QueryRowContext(ctx, contextText).Scan(&contextID); err != nil {
				return fmt.Errorf("could not insert context for '%s': %w", contextText, err)
			}
			contextCache[contextText] = contextID
		}

		nextID, err := symbolID(chain.Next)
		if err != nil {
			return err
		}
		if _, err = stmtTransition.ExecContext(ctx, modelID, contextID, nextID, chain.Count); err != nil {
			return fmt.Errorf("failed to insert transition (%d -> %d): %w", contextID, nextID, err)
		}
		saved++
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_id", modelID),
		slog.Int("transitions_saved", saved),
	)
	return nil
}

type storedTransition struct {
	contextText string
	nextID      int
	nextText    string
	frequency   int
}

// Load rebuilds the model stored under name, ordering its symbols with cmp.
// It returns ErrModelNotFound if no such model exists.
func (s *Store[T]) Load(ctx context.Context, name string, cmp order.Compare[T]) (*markov.Model[T], error) {
	info, err := s.Info(ctx, name)
	if err != nil {
		return nil, err
	}
	m, err := markov.New(info.Order, cmp)
	if err != nil {
		return nil, fmt.Errorf("stored model %q is invalid: %w", name, err)
	}

	transitions, err := s.transitions(ctx, info.Id)
	if err != nil {
		return nil, err
	}

	// Context symbols that never appear as a follower are resolved lazily.
	symbols := make(map[int]T)
	for _, st := range transitions {
		if _, ok := symbols[st.nextID]; ok {
			continue
		}
		if symbols[st.nextID], err = s.codec.Decode(st.nextText); err != nil {
			return nil, err
		}
	}

	state := make([]T, info.Order)
	for _, st := range transitions {
		fields := strings.Fields(st.contextText)
		if len(fields) != info.Order {
			return nil, fmt.Errorf("stored context %q does not match model order %d", st.contextText, info.Order)
		}
		for i, field := range fields {
			id, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("malformed stored context %q: %w", st.contextText, err)
			}
			symbol, ok := symbols[id]
			if !ok {
				if symbol, err = s.symbol(ctx, id); err != nil {
					return nil, err
				}
				symbols[id] = symbol
			}
			state[i] = symbol
		}
		if err = m.Observe(state, symbols[st.nextID], st.frequency); err != nil {
			return nil, fmt.Errorf("could not restore transition: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "Model loaded",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("transitions_loaded", len(transitions)),
	)
	return m, nil
}

func (s *Store[T]) transitions(ctx context.Context, modelID int) ([]storedTransition, error) {
	rows, err := s.stmtModelTransitions.QueryContext(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("could not query transitions for model %d: %w", modelID, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var out []storedTransition
	for rows.Next() {
		var st storedTransition
		if err = rows.Scan(&st.contextText, &st.nextID, &st.nextText, &st.frequency); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store[T]) symbol(ctx context.Context, id int) (T, error) {
	var zero T
	var text string
	if err := s.db.QueryRowContext(ctx, `SELECT symbol_text FROM cadence_symbols WHERE symbol_id = ?;`, id).Scan(&text); err != nil {
		return zero, fmt.Errorf("could not resolve symbol %d: %w", id, err)
	}
	return s.codec.Decode(text)
}

// Remove deletes a model and all of its transitions. The operation is
// performed within a transaction. Interned symbols and contexts are kept, as
// other models may share them.
func (s *Store[T]) Remove(ctx context.Context, name string) error {
	info, err := s.Info(ctx, name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.StmtContext(ctx, s.stmtClearModel).ExecContext(ctx, info.Id); err != nil {
		return fmt.Errorf("failed to remove transitions for model %d: %w", info.Id, err)
	}
	if _, err = tx.StmtContext(ctx, s.stmtDeleteModel).ExecContext(ctx, info.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", info.Id, err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", info.Name),
		slog.Int("model_id", info.Id),
	)
	return nil
}
