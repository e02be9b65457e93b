package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SpeedyGo55/markov-llm/pkg/store"
)

// initDB opens the SQLite database at dataSource, creating its directory and
// schema when missing. Driver parameters are added unless dataSource already
// carries a query string.
func initDB(dataSource string) (*sql.DB, error) {
	path, _, hasParams := strings.Cut(dataSource, "?")
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if !hasParams {
		dataSource += "?" + dbParams
	}
	db, err := sql.Open(dbDriver, dataSource)
	if err != nil {
		return nil, err
	}
	if err = store.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup markov schema: %w", err)
	}
	return db, nil
}

// Server wires the model store to the HTTP API.
type Server struct {
	config    *Config
	db        *sql.DB
	logger    *slog.Logger
	store     *store.Store
	markovAPI *MarkovAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
}

// NewServer builds the store and API handlers on top of db.
func NewServer(config *Config, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	st, err := store.New(db)
	if err != nil {
		return nil, fmt.Errorf("error creating model store: %w", err)
	}
	st.SetLogger(logger)

	server := &Server{
		config:    config,
		db:        db,
		logger:    logger,
		store:     st,
		markovAPI: NewMarkovAPI(st, config.Model, config.Server.MaxBodyBytes, logger),
		serverAPI: NewServerAPI(config, actionChan, logger),
		apiMux:    http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.markovAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	server.apiMux.Handle("/api/", requestLogger(logger, apiMux))

	return server, nil
}

// Close releases the store's prepared statements.
func (s *Server) Close() {
	s.store.Close()
}

// run hosts the API server and returns whenever it is shut down or restarted.
func run(configPath string, actionChan chan string) (string, error) {

	config, err := LoadConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))
	logger.Info("Starting server cycle...")

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}

	server, err := NewServer(config, logger, db, actionChan)
	if err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to create server object: %w", err)
	}

	apiHttpServer := &http.Server{
		Addr:              config.Server.ApiAddr,
		Handler:           server.apiMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
			actionChan <- actionShutdown
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping server for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	server.Close()
	logger.Info("Closing database connection.")
	if err = db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	return action, nil
}
