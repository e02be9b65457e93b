package markov

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/atomic"
)

// Snapshot is the serializable form of a trained chain. The random source is
// never part of it.
type Snapshot struct {
	StateMap  *StateMap `json:"state_map"`
	StateSize int       `json:"state_size"`
}

// Snapshot returns an independent copy of the chain's table and state size.
func (c *Chain) Snapshot() Snapshot {
	return Snapshot{
		StateMap:  c.table.Clone(),
		StateSize: c.stateSize,
	}
}

// Restore builds a chain from a snapshot after checking that every state key
// holds exactly StateSize tokens and every successor list is non-empty. The
// chain gets a fresh random source unless one is supplied through opts. The
// snapshot's map is copied, so the caller may keep using it.
func Restore(s Snapshot, opts ...Option) (*Chain, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	c := NewChain(opts...)
	c.stateSize = s.StateSize
	if s.StateMap != nil {
		c.table = s.StateMap.Clone()
	}
	return c, nil
}

// Validate checks the snapshot against the chain invariants.
func (s Snapshot) Validate() error {
	if s.StateSize < 0 {
		return fmt.Errorf("%w: negative state size %d", ErrInvalidModel, s.StateSize)
	}
	if s.StateMap == nil {
		return nil
	}
	if s.StateSize == 0 && s.StateMap.Len() > 0 {
		return fmt.Errorf("%w: untrained model holds %d states", ErrInvalidModel, s.StateMap.Len())
	}
	var err error
	s.StateMap.Range(func(key string, successors []string) bool {
		if tokens := strings.Fields(key); len(tokens) != s.StateSize || stateKey(tokens) != key {
			err = fmt.Errorf("%w: state %q is not %d space separated tokens", ErrInvalidModel, key, s.StateSize)
			return false
		}
		if len(successors) == 0 {
			err = fmt.Errorf("%w: state %q has no successors", ErrInvalidModel, key)
			return false
		}
		return true
	})
	return err
}

// ExportModel writes the chain as JSON to w. State order and successor order
// are preserved exactly.
func (c *Chain) ExportModel(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(Snapshot{StateMap: c.table, StateSize: c.stateSize}); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}

	c.logger.Info("Model exported",
		slog.Int("state_size", c.stateSize),
		slog.Int("states_exported", c.table.Len()),
	)
	return nil
}

// ImportModel reads a JSON model written by ExportModel and returns it as a
// new chain.
func ImportModel(r io.Reader, opts ...Option) (*Chain, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode json model: %w", err)
	}
	c, err := Restore(s, opts...)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Model imported",
		slog.Int("state_size", c.stateSize),
		slog.Int("states_imported", c.table.Len()),
	)
	return c, nil
}

// SaveFile writes the chain's JSON export to path. The file is replaced
// atomically, so a failed save never leaves a truncated model behind.
func (c *Chain) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := c.ExportModel(&buf); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write model file %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a model file written by SaveFile.
func LoadFile(path string, opts ...Option) (*Chain, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file %s: %w", path, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	c, err := ImportModel(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load model file %s: %w", path, err)
	}
	return c, nil
}
