package store

import (
	"context"
	"sort"
)

// DBStats holds aggregated statistics for the entire database.
type DBStats struct {
	Models    []ModelInfo        `json:"models"`     // All stored models, ordered by name
	Stats     map[int]ModelStats `json:"stats"`      // A mapping of model ids to their stats
	VocabSize int                `json:"vocab_size"` // The number of unique tokens across all models
}

// ModelStats holds row counts for a single stored model.
type ModelStats struct {
	States      int `json:"states"`      // The number of distinct states.
	Transitions int `json:"transitions"` // The number of stored successors, duplicates included.
}

// GetStats returns a snapshot of statistics for the entire database.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	var vocabLen int
	if err = s.stmtGetVocabLen.QueryRowContext(ctx).Scan(&vocabLen); err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ModelStats)
	for _, v := range modelInfos {
		models = append(models, v)
		var stats ModelStats
		if err = s.stmtCountStates.QueryRowContext(ctx, v.Id).Scan(&stats.States); err != nil {
			return nil, err
		}
		if err = s.stmtCountSuccs.QueryRowContext(ctx, v.Id).Scan(&stats.Transitions); err != nil {
			return nil, err
		}
		modelStats[v.Id] = stats
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].Name < models[j].Name
	})

	return &DBStats{
		Models:    models,
		Stats:     modelStats,
		VocabSize: vocabLen,
	}, nil
}
