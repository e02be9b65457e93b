package store

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema initializes the necessary tables in the provided database. It
// is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaVocab = `
CREATE TABLE IF NOT EXISTS markov_vocabulary (
    token_id INTEGER PRIMARY KEY,
    token_text TEXT NOT NULL UNIQUE
);
`
		schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    state_size INTEGER NOT NULL
);
`
		schemaStates = `
CREATE TABLE IF NOT EXISTS markov_states (
    model_id INTEGER NOT NULL,
    state_pos INTEGER NOT NULL,
    state_text TEXT NOT NULL,
    PRIMARY KEY (model_id, state_pos),
    UNIQUE (model_id, state_text)
);
`
		schemaSuccessors = `
CREATE TABLE IF NOT EXISTS markov_successors (
    model_id INTEGER NOT NULL,
    state_pos INTEGER NOT NULL,
    successor_pos INTEGER NOT NULL,
    token_id INTEGER NOT NULL,
    PRIMARY KEY (model_id, state_pos, successor_pos)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, schema := range []string{schemaVocab, schemaModels, schemaStates, schemaSuccessors} {
		if _, err = tx.Exec(schema); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store persists chains in a SQLite database. It holds prepared statements for
// the queries it runs on every call.
type Store struct {
	db               *sql.DB
	stmtGetModelInfo *sql.Stmt
	stmtGetModels    *sql.Stmt
	stmtUpsertModel  *sql.Stmt
	stmtInsertVocab  *sql.Stmt
	stmtInsertState  *sql.Stmt
	stmtInsertSucc   *sql.Stmt
	stmtGetStates    *sql.Stmt
	stmtGetSuccs     *sql.Stmt
	stmtCountStates  *sql.Stmt
	stmtCountSuccs   *sql.Stmt
	stmtGetVocabLen  *sql.Stmt
	logger           *slog.Logger
}

// New creates and returns a new Store. It pre-compiles all necessary SQL
// statements, returning an error if any preparation fails. SetupSchema must
// have been run on db.
func New(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	statements := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetModelInfo, `SELECT model_id, state_size FROM markov_models WHERE model_name = ?;`},
		{&s.stmtGetModels, `SELECT model_id, model_name, state_size FROM markov_models ORDER BY model_name;`},
		{&s.stmtUpsertModel, `INSERT INTO markov_models (model_name, state_size) VALUES (?, ?) ON CONFLICT(model_name) DO UPDATE SET state_size=excluded.state_size RETURNING model_id;`},
		{&s.stmtInsertVocab, `INSERT INTO markov_vocabulary (token_text) VALUES (?) ON CONFLICT(token_text) DO UPDATE SET token_text=excluded.token_text RETURNING token_id;`},
		{&s.stmtInsertState, `INSERT INTO markov_states (model_id, state_pos, state_text) VALUES (?, ?, ?);`},
		{&s.stmtInsertSucc, `INSERT INTO markov_successors (model_id, state_pos, successor_pos, token_id) VALUES (?, ?, ?, ?);`},
		{&s.stmtGetStates, `SELECT state_pos, state_text FROM markov_states WHERE model_id = ? ORDER BY state_pos;`},
		{&s.stmtGetSuccs, `SELECT s.state_pos, v.token_text FROM markov_successors s JOIN markov_vocabulary v ON v.token_id = s.token_id WHERE s.model_id = ? ORDER BY s.state_pos, s.successor_pos;`},
		{&s.stmtCountStates, `SELECT COUNT(*) FROM markov_states WHERE model_id = ?;`},
		{&s.stmtCountSuccs, `SELECT COUNT(*) FROM markov_successors WHERE model_id = ?;`},
		{&s.stmtGetVocabLen, `SELECT COUNT(*) FROM markov_vocabulary;`},
	}
	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement %q: %w", st.query, err)
		}
		*st.dst = stmt
	}

	return s, nil
}

// Close releases all prepared SQL statements held by the Store. The database
// itself stays open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetModelInfo,
		s.stmtGetModels,
		s.stmtUpsertModel,
		s.stmtInsertVocab,
		s.stmtInsertState,
		s.stmtInsertSucc,
		s.stmtGetStates,
		s.stmtGetSuccs,
		s.stmtCountStates,
		s.stmtCountSuccs,
		s.stmtGetVocabLen,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}
