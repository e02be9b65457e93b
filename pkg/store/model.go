package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/SpeedyGo55/markov-llm/pkg/markov"
)

// ModelInfo holds the metadata of a stored model: its unique ID, name and
// state size (the number of tokens per state).
type ModelInfo struct {
	Id        int    `json:"id"`
	Name      string `json:"name"`
	StateSize int    `json:"state_size"`
}

// GetModelInfos retrieves metadata for all stored models, keyed by name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.StateSize); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata for a single model. It returns
// sql.ErrNoRows if no model has that name.
func (s *Store) GetModelInfo(ctx context.Context, name string) (ModelInfo, error) {
	info := ModelInfo{Name: name}
	err := s.stmtGetModelInfo.QueryRowContext(ctx, name).Scan(&info.Id, &info.StateSize)
	if err != nil {
		return ModelInfo{}, err
	}
	return info, nil
}

// Save stores the chain under name, replacing any model already stored with
// that name. The operation is performed within a transaction.
func (s *Store) Save(ctx context.Context, name string, chain *markov.Chain) (ModelInfo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	info := ModelInfo{Name: name, StateSize: chain.StateSize()}
	if err = tx.StmtContext(ctx, s.stmtUpsertModel).QueryRowContext(ctx, name, info.StateSize).Scan(&info.Id); err != nil {
		return ModelInfo{}, fmt.Errorf("failed to upsert model '%s': %w", name, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_successors WHERE model_id = ?", info.Id); err != nil {
		return ModelInfo{}, fmt.Errorf("failed to clear successors for model %d: %w", info.Id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_states WHERE model_id = ?", info.Id); err != nil {
		return ModelInfo{}, fmt.Errorf("failed to clear states for model %d: %w", info.Id, err)
	}

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	stmtInsertState := tx.StmtContext(ctx, s.stmtInsertState)
	stmtInsertSucc := tx.StmtContext(ctx, s.stmtInsertSucc)

	vocabCache := make(map[string]int)
	var statePos, successorCount int

	chain.Table().Range(func(key string, successors []string) bool {
		if _, err = stmtInsertState.ExecContext(ctx, info.Id, statePos, key); err != nil {
			err = fmt.Errorf("failed to insert state '%s': %w", key, err)
			return false
		}
		for successorPos, token := range successors {
			tokenID, ok := vocabCache[token]
			if !ok {
				if err = stmtInsertVocab.QueryRowContext(ctx, token).Scan(&tokenID); err != nil {
					err = fmt.Errorf("sql insert vocabulary error for token '%s': %w", token, err)
					return false
				}
				vocabCache[token] = tokenID
			}
			if _, err = stmtInsertSucc.ExecContext(ctx, info.Id, statePos, successorPos, tokenID); err != nil {
				err = fmt.Errorf("failed to insert successor of state '%s': %w", key, err)
				return false
			}
			successorCount++
		}
		statePos++
		return true
	})
	if err != nil {
		return ModelInfo{}, err
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, fmt.Errorf("could not commit model '%s': %w", name, err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("state_size", info.StateSize),
		slog.Int("states_saved", statePos),
		slog.Int("successors_saved", successorCount),
	)
	return info, nil
}

// Load reads the named model back into a new chain, configured with opts. It
// returns sql.ErrNoRows if no model has that name.
func (s *Store) Load(ctx context.Context, name string, opts ...markov.Option) (*markov.Chain, error) {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	stateText, err := s.loadStates(ctx, info)
	if err != nil {
		return nil, err
	}

	rows, err := s.stmtGetSuccs.QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query successors for model %d: %w", info.Id, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	table := markov.NewStateMap()
	for rows.Next() {
		var pos int
		var token string
		if err = rows.Scan(&pos, &token); err != nil {
			return nil, err
		}
		key, ok := stateText[pos]
		if !ok {
			return nil, fmt.Errorf("consistency error: successor references unknown state position %d in model %d", pos, info.Id)
		}
		table.Append(key, token)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if table.Len() != len(stateText) {
		return nil, fmt.Errorf("consistency error: model %d has %d states but only %d with successors", info.Id, len(stateText), table.Len())
	}

	chain, err := markov.Restore(markov.Snapshot{StateMap: table, StateSize: info.StateSize}, opts...)
	if err != nil {
		return nil, fmt.Errorf("stored model '%s' is invalid: %w", name, err)
	}

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("states_loaded", table.Len()),
	)
	return chain, nil
}

func (s *Store) loadStates(ctx context.Context, info ModelInfo) (map[int]string, error) {
	rows, err := s.stmtGetStates.QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query states for model %d: %w", info.Id, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	stateText := make(map[int]string)
	for rows.Next() {
		var pos int
		var text string
		if err = rows.Scan(&pos, &text); err != nil {
			return nil, err
		}
		stateText[pos] = text
	}
	return stateText, rows.Err()
}

// RemoveModel deletes a model and all of its states and successors. The
// operation is performed within a transaction.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_successors WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove successors for model %d: %w", model.Id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_states WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove states for model %d: %w", model.Id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_models WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)

	return tx.Commit()
}
