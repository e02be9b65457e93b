package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/SpeedyGo55/markov-llm/pkg/corpus"
	"github.com/SpeedyGo55/markov-llm/pkg/markov"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for storage, logging and the HTTP API.
type ServerConfig struct {
	ApiAddr      string `json:"api_addr"`
	LogLevel     string `json:"log_level"`
	DatabasePath string `json:"database_path"`
	MaxBodyBytes int64  `json:"max_body_bytes"`
}

// ModelConfig holds defaults for training and generation.
type ModelConfig struct {
	DefaultModel      string `json:"default_model"`
	StateSize         int    `json:"state_size"`
	GenerateLength    int    `json:"generate_length"`
	CompleteMinLength int    `json:"complete_min_length"`
	MaxLength         int    `json:"max_length"` // upper bound for API lengths
	MaxSteps          int    `json:"max_steps"`
	Seed              uint64 `json:"seed"` // 0 seeds every chain randomly
	MinSentenceTokens int    `json:"min_sentence_tokens"`
	CleanCorpus       bool   `json:"clean_corpus"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig `json:"server_config"`
	Model  *ModelConfig  `json:"model_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:      "127.0.0.1:7278",
		LogLevel:     "info",
		DatabasePath: "./data/markov.db",
		MaxBodyBytes: 32 << 20,
	}
}

// DefaultModelConfig creates a model configuration with default values.
func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{
		DefaultModel:      "default",
		StateSize:         2,
		GenerateLength:    100,
		CompleteMinLength: 20,
		MaxLength:         10_000,
		MaxSteps:          markov.DefaultMaxSteps,
		Seed:              0,
		MinSentenceTokens: 1,
		CleanCorpus:       false,
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := &Config{
		Server: DefaultServerConfig(),
		Model:  DefaultModelConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Warn instead of failing, as we can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Model == nil {
		config.Model = DefaultModelConfig()
	}

	return config, nil
}

// parseLogLevel maps a config string to a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// chainOptions returns the options every chain built by this binary gets.
func (m *ModelConfig) chainOptions(logger *slog.Logger) []markov.Option {
	opts := []markov.Option{
		markov.WithMaxSteps(m.MaxSteps),
		markov.WithLogger(logger),
	}
	if m.Seed != 0 {
		opts = append(opts, markov.WithSeed(m.Seed))
	}
	return opts
}

// corpusReader returns a sentence reader configured from the model config.
func (m *ModelConfig) corpusReader() *corpus.Reader {
	return corpus.NewReader(
		corpus.WithMinTokens(m.MinSentenceTokens),
		corpus.WithClean(m.CleanCorpus),
	)
}
