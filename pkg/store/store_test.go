package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/SpeedyGo55/markov-llm/pkg/markov"
	_ "modernc.org/sqlite"
)

// setupTestDB creates a new SQLite database in a temp dir and a Store for
// testing. It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	// Running it twice must be harmless.
	if err = SetupSchema(db); err != nil {
		t.Fatalf("second SetupSchema() failed: %v", err)
	}

	s, err := New(db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)
	return db, s
}

func trainedChain(t *testing.T, sentences []string, stateSize int) *markov.Chain {
	t.Helper()
	c := markov.NewChain(markov.WithSeed(1))
	if err := c.Train(sentences, stateSize); err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return c
}

func TestSaveLoadRoundTrip(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	original := trainedChain(t, []string{
		"Zebra eats grass and grass and more grass.",
		"Apple falls on the grass.",
		"Zebra eats apples.",
	}, 2)

	info, err := s.Save(ctx, "zoo", original)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if info.Name != "zoo" || info.StateSize != 2 || info.Id == 0 {
		t.Errorf("unexpected model info after save: %+v", info)
	}

	loaded, err := s.Load(ctx, "zoo", markov.WithSeed(2))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.StateSize() != original.StateSize() {
		t.Errorf("state size: got %d, want %d", loaded.StateSize(), original.StateSize())
	}
	if !loaded.Table().Equal(original.Table()) {
		t.Errorf("loaded table differs\ngot:  %v\nwant: %v", loaded.Table().Keys(), original.Table().Keys())
	}
}

func TestSaveReplacesModel(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	first, err := s.Save(ctx, "model", trainedChain(t, []string{"The cat sat on the mat."}, 1))
	if err != nil {
		t.Fatalf("first Save() failed: %v", err)
	}
	replacement := trainedChain(t, []string{"A dog ran."}, 2)
	second, err := s.Save(ctx, "model", replacement)
	if err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}
	if first.Id != second.Id {
		t.Errorf("expected the model id to be kept, got %d then %d", first.Id, second.Id)
	}

	loaded, err := s.Load(ctx, "model")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.StateSize() != 2 || !loaded.Table().Equal(replacement.Table()) {
		t.Errorf("expected the replacement model, got state size %d and states %v", loaded.StateSize(), loaded.Table().Keys())
	}

	var count int
	if err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_states WHERE model_id = ?", second.Id).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected old states to be cleared, found %d", count)
	}
}

func TestSaveUntrainedModel(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "empty", markov.NewChain()); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	loaded, err := s.Load(ctx, "empty")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.StateSize() != 0 || loaded.Table().Len() != 0 {
		t.Errorf("expected an untrained chain, got state size %d with %d states", loaded.StateSize(), loaded.Table().Len())
	}
}

func TestGetModelInfos(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, _ = s.Save(ctx, "test_model", trainedChain(t, []string{"One fish two fish."}, 2))
	_, _ = s.Save(ctx, "another_model", trainedChain(t, []string{"Red fish blue fish."}, 1))

	models, err := s.GetModelInfos(ctx)
	if err != nil {
		t.Fatalf("GetModelInfos failed: %v", err)
	}
	if len(models) != 2 {
		t.Errorf("expected 2 models, got %d", len(models))
	}
	if m, ok := models["test_model"]; !ok || m.StateSize != 2 {
		t.Errorf("expected to find 'test_model' with state size 2, got %+v", m)
	}
	if m, ok := models["another_model"]; !ok || m.StateSize != 1 {
		t.Errorf("expected to find 'another_model' with state size 1, got %+v", m)
	}
}

func TestUnknownModel(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.GetModelInfo(ctx, "nonexistent_model"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetModelInfo: expected sql.ErrNoRows, got %v", err)
	}
	if _, err := s.Load(ctx, "nonexistent_model"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Load: expected sql.ErrNoRows, got %v", err)
	}
}

func TestRemoveModel(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	m1, _ := s.Save(ctx, "to_delete", trainedChain(t, []string{"Delete this data."}, 1))
	m2, _ := s.Save(ctx, "to_keep", trainedChain(t, []string{"Keep this data."}, 1))

	if err := s.RemoveModel(ctx, m1); err != nil {
		t.Fatalf("RemoveModel failed: %v", err)
	}

	if _, err := s.GetModelInfo(ctx, m1.Name); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for deleted model, got %v", err)
	}

	var count int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_successors WHERE model_id = ?", m1.Id).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 successors for deleted model, found %d", count)
	}

	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_successors WHERE model_id = ?", m2.Id).Scan(&count)
	if count == 0 {
		t.Error("expected successors for kept model to exist, but found 0")
	}
}

func TestGetStats(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	info, err := s.Save(ctx, "pets", trainedChain(t, []string{"The cat sat.", "The dog ran."}, 1))
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	_, _ = s.Save(ctx, "alpha", markov.NewChain())

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if len(stats.Models) != 2 || stats.Models[0].Name != "alpha" || stats.Models[1].Name != "pets" {
		t.Errorf("expected models ordered by name, got %+v", stats.Models)
	}
	if got := stats.Stats[info.Id]; got.States != 3 || got.Transitions != 4 {
		t.Errorf("unexpected stats for 'pets': %+v", got)
	}
	// cat, dog, sat., ran.
	if stats.VocabSize != 4 {
		t.Errorf("expected 4 vocabulary entries, got %d", stats.VocabSize)
	}
}
