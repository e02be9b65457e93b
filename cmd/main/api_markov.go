package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/SpeedyGo55/markov-llm/pkg/corpus"
	"github.com/SpeedyGo55/markov-llm/pkg/markov"
	"github.com/SpeedyGo55/markov-llm/pkg/store"
)

// cachedChain guards a loaded chain. A markov.Chain is not safe for
// concurrent use, so every request on a model holds mu. A stale entry no
// longer matches the store and must be reloaded before use.
type cachedChain struct {
	mu    sync.Mutex
	chain *markov.Chain
	stale bool
}

// MarkovAPI holds the dependencies for the Markov model API handlers.
type MarkovAPI struct {
	store   *store.Store
	model   *ModelConfig
	reader  *corpus.Reader
	maxBody int64
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]*cachedChain
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(st *store.Store, model *ModelConfig, maxBody int64, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		store:   st,
		model:   model,
		reader:  model.corpusReader(),
		maxBody: maxBody,
		logger:  logger,
		cache:   make(map[string]*cachedChain),
	}
}

// RegisterRoutes sets up the routing for all /api/markov endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/markov/models", m.handleListAndCreateModels)
	mux.HandleFunc("/api/markov/models/", m.handleModelByName)
	mux.HandleFunc("/api/markov/stats", m.handleStats)
}

type CreateModelRequest struct {
	Name      string `json:"name"`
	StateSize int    `json:"state_size"`
}

type CompleteRequest struct {
	Seed      string `json:"seed"`
	MinLength *int   `json:"min_length"`
}

type TextResponse struct {
	Text string `json:"text"`
}

type TrainResponse struct {
	Sentences int               `json:"sentences"`
	Stats     markov.ModelStats `json:"stats"`
}

// handleListAndCreateModels handles GET for listing and POST for creating models.
func (m *MarkovAPI) handleListAndCreateModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		models, err := m.store.GetModelInfos(r.Context())
		if err != nil {
			m.logger.Error("Failed to get model infos", "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
			return
		}
		// Convert map to slice for consistent JSON output
		modelList := make([]store.ModelInfo, 0, len(models))
		for _, model := range models {
			modelList = append(modelList, model)
		}
		sort.Slice(modelList, func(i, j int) bool { return modelList[i].Name < modelList[j].Name })
		respondWithJSON(w, http.StatusOK, modelList)

	case http.MethodPost:
		var req CreateModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if req.Name == "" || strings.Contains(req.Name, "/") || req.StateSize <= 0 {
			respondWithError(w, http.StatusBadRequest, "Model name (without '/') and a positive state_size are required")
			return
		}
		// Training on no sentences fixes the state size of the empty chain.
		chain := markov.NewChain(m.model.chainOptions(m.logger)...)
		if err := chain.Train(nil, req.StateSize); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		var info store.ModelInfo
		exists := false
		err := m.replace(req.Name, func() (*markov.Chain, error) {
			if _, err := m.store.GetModelInfo(r.Context(), req.Name); err == nil {
				exists = true
				return nil, nil
			}
			var err error
			info, err = m.store.Save(r.Context(), req.Name, chain)
			return chain, err
		})
		if exists {
			respondWithError(w, http.StatusConflict, "Model already exists")
			return
		}
		if err != nil {
			m.logger.Error("Failed to insert new model", "name", req.Name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create model: %v", err))
			return
		}
		respondWithJSON(w, http.StatusCreated, info)

	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleModelByName routes actions for a specific model, e.g., train,
// generate, complete, export, import, stats, delete.
func (m *MarkovAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {

	path := strings.TrimPrefix(r.URL.Path, "/api/markov/models/")
	parts := strings.Split(path, "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	if len(parts) == 2 && parts[1] == "import" {
		m.handleImport(w, r, modelName)
		return
	}

	model, err := m.store.GetModelInfo(r.Context(), modelName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		m.logger.Error("Failed to get model info by name", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	if len(parts) == 1 { // Path is just /api/markov/models/{name}
		switch r.Method {
		case http.MethodGet:
			respondWithJSON(w, http.StatusOK, model)
		case http.MethodDelete:
			err = m.replace(modelName, func() (*markov.Chain, error) {
				return nil, m.store.RemoveModel(r.Context(), model)
			})
			if err != nil {
				m.logger.Error("Failed to remove model", "name", modelName, "error", err)
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove model: %v", err))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	action := parts[1]
	switch action {
	case "train":
		if requireMethod(w, r, http.MethodPost) {
			m.handleTrain(w, r, modelName)
		}
	case "generate":
		if requireMethod(w, r, http.MethodGet) {
			m.handleGenerate(w, r, modelName)
		}
	case "complete":
		if requireMethod(w, r, http.MethodPost) {
			m.handleComplete(w, r, modelName)
		}
	case "export":
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", modelName))
		err = m.withChain(r.Context(), modelName, func(chain *markov.Chain) error {
			return chain.ExportModel(w)
		})
		if err != nil {
			m.logger.Error("Failed to export model", "name", modelName, "error", err)
		}
	case "stats":
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		var stats markov.ModelStats
		err = m.withChain(r.Context(), modelName, func(chain *markov.Chain) error {
			stats = chain.Stats()
			return nil
		})
		if err != nil {
			m.respondWithModelError(w, modelName, "Stats", err)
			return
		}
		respondWithJSON(w, http.StatusOK, stats)
	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleTrain trains a model on the raw text in the request body. The
// state_size query parameter is only needed for models that are untrained.
func (m *MarkovAPI) handleTrain(w http.ResponseWriter, r *http.Request, modelName string) {
	sentences, err := m.reader.ReadSentences(http.MaxBytesReader(w, r.Body, m.maxBody))
	if err != nil {
		if isBodyTooLarge(err) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Training corpus too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read training corpus: %v", err))
		return
	}

	var resp TrainResponse
	err = m.update(r.Context(), modelName, func(chain *markov.Chain) error {
		stateSize := chain.StateSize()
		if q := r.URL.Query().Get("state_size"); q != "" {
			n, convErr := strconv.Atoi(q)
			if convErr != nil {
				return fmt.Errorf("%w: %q is not a number", markov.ErrInvalidStateSize, q)
			}
			stateSize = n
		}
		if stateSize == 0 {
			stateSize = m.model.StateSize
		}
		if err := chain.Train(sentences, stateSize); err != nil {
			return err
		}
		if _, err := m.store.Save(r.Context(), modelName, chain); err != nil {
			return err
		}
		resp = TrainResponse{Sentences: len(sentences), Stats: chain.Stats()}
		return nil
	})
	if err != nil {
		m.respondWithModelError(w, modelName, "Training", err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (m *MarkovAPI) handleGenerate(w http.ResponseWriter, r *http.Request, modelName string) {
	length := m.model.GenerateLength
	if q := r.URL.Query().Get("length"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 || n > m.model.MaxLength {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("length must be an integer between 0 and %d", m.model.MaxLength))
			return
		}
		length = n
	}

	var text string
	err := m.withChain(r.Context(), modelName, func(chain *markov.Chain) (err error) {
		text, err = chain.Generate(length)
		return err
	})
	if err != nil {
		m.respondWithModelError(w, modelName, "Generation", err)
		return
	}
	respondWithJSON(w, http.StatusOK, TextResponse{Text: text})
}

func (m *MarkovAPI) handleComplete(w http.ResponseWriter, r *http.Request, modelName string) {
	var req CompleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, m.maxBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	minLen := m.model.CompleteMinLength
	if req.MinLength != nil {
		minLen = *req.MinLength
	}
	if minLen > m.model.MaxLength {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("min_length must not exceed %d", m.model.MaxLength))
		return
	}

	var text string
	err := m.withChain(r.Context(), modelName, func(chain *markov.Chain) (err error) {
		text, err = chain.Complete(req.Seed, minLen)
		return err
	})
	if err != nil {
		m.respondWithModelError(w, modelName, "Completion", err)
		return
	}
	respondWithJSON(w, http.StatusOK, TextResponse{Text: text})
}

// handleImport replaces (or creates) a model from an uploaded JSON export.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request, modelName string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	chain, err := markov.ImportModel(http.MaxBytesReader(w, r.Body, m.maxBody), m.model.chainOptions(m.logger)...)
	if err != nil {
		if isBodyTooLarge(err) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Model too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}

	var info store.ModelInfo
	err = m.replace(modelName, func() (*markov.Chain, error) {
		var err error
		info, err = m.store.Save(r.Context(), modelName, chain)
		return chain, err
	})
	if err != nil {
		m.logger.Error("Failed to import model", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Import failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusCreated, info)
}

// handleStats returns database-wide statistics.
func (m *MarkovAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := m.store.GetStats(r.Context())
	if err != nil {
		m.logger.Error("Failed to get stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// withChain runs fn with exclusive access to the named model's chain,
// loading it from the store on first use.
func (m *MarkovAPI) withChain(ctx context.Context, name string, fn func(*markov.Chain) error) error {
	return m.withEntry(ctx, name, func(entry *cachedChain) error {
		return fn(entry.chain)
	})
}

// update is withChain for handlers that change the chain and save it. When
// fn fails the chain may hold unsaved changes, so it is reloaded next time.
func (m *MarkovAPI) update(ctx context.Context, name string, fn func(*markov.Chain) error) error {
	return m.withEntry(ctx, name, func(entry *cachedChain) error {
		err := fn(entry.chain)
		if err != nil {
			entry.stale = true
		}
		return err
	})
}

// withEntry runs fn holding the lock of the named model's cache entry,
// replacing stale entries with a fresh load. Locks are always taken m.mu
// first, and fn must not take m.mu.
func (m *MarkovAPI) withEntry(ctx context.Context, name string, fn func(*cachedChain) error) error {
	for {
		m.mu.Lock()
		entry, ok := m.cache[name]
		if !ok {
			chain, err := m.store.Load(ctx, name, m.model.chainOptions(m.logger)...)
			if err != nil {
				m.mu.Unlock()
				return err
			}
			entry = &cachedChain{chain: chain}
			m.cache[name] = entry
		}
		m.mu.Unlock()

		entry.mu.Lock()
		if !entry.stale {
			defer entry.mu.Unlock()
			return fn(entry)
		}
		entry.mu.Unlock()

		m.mu.Lock()
		if m.cache[name] == entry {
			delete(m.cache, name)
		}
		m.mu.Unlock()
	}
}

// replace rewrites the stored model through fn while no request can use or
// reload it. It waits for requests holding the current chain, retires that
// chain, and caches the chain fn returns, if any.
func (m *MarkovAPI) replace(name string, fn func() (*markov.Chain, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.cache[name]; ok {
		entry.mu.Lock()
		entry.stale = true
		entry.mu.Unlock()
		delete(m.cache, name)
	}

	chain, err := fn()
	if err != nil {
		return err
	}
	if chain != nil {
		m.cache[name] = &cachedChain{chain: chain}
	}
	return nil
}

// respondWithModelError maps chain and store errors to HTTP statuses.
func (m *MarkovAPI) respondWithModelError(w http.ResponseWriter, modelName, op string, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondWithError(w, http.StatusNotFound, "Model not found")
	case errors.Is(err, markov.ErrNoStartState),
		errors.Is(err, markov.ErrStateSizeMismatch),
		errors.Is(err, markov.ErrInvalidStateSize),
		errors.Is(err, markov.ErrWalkLimit):
		respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s failed: %v", op, err))
	default:
		m.logger.Error(op+" failed", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("%s failed: %v", op, err))
	}
}
