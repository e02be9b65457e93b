package markov

import (
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
)

const (
	// DefaultMaxSteps is the default ceiling on random-walk iterations in
	// Complete.
	DefaultMaxSteps = 100_000
	// MaxCompleteFlush is the output length at which Complete stops flushing
	// terminal states.
	MaxCompleteFlush = 100

	// maxPrealloc caps the output capacity reserved up front, since lengths
	// come from callers.
	maxPrealloc = 1024
)

var (
	// ErrInvalidStateSize is returned when training is requested with a state
	// size below 1.
	ErrInvalidStateSize = errors.New("markov: state size must be positive")
	// ErrStateSizeMismatch is returned when a chain is trained with a state
	// size different from the one it was first trained with. Mixing sizes
	// would make state keys of different lengths share one table.
	ErrStateSizeMismatch = errors.New("markov: state size differs from the trained state size")
	// ErrNoStartState is returned when no state in the table begins with an
	// uppercase letter, so no sentence can be started.
	ErrNoStartState = errors.New("markov: no state begins with an uppercase letter")
	// ErrWalkLimit is returned when Complete exceeds its step ceiling before
	// ending on a sentence boundary.
	ErrWalkLimit = errors.New("markov: random walk exceeded its step limit")
	// ErrInvalidModel is returned when an imported or restored table breaks
	// the chain invariants.
	ErrInvalidModel = errors.New("markov: invalid model")
)

// Chain is a variable-order Markov chain over whitespace separated tokens.
//
// A Chain is not safe for concurrent use: training mutates the table and
// generation advances the random source in place. Independent chains share no
// state.
type Chain struct {
	stateSize   int
	table       *StateMap
	starts      []string
	startsValid bool
	rng         *rand.Rand
	maxSteps    int
	logger      *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithRand sets the random source used during generation. Supplying a seeded
// source makes generation reproducible.
func WithRand(r *rand.Rand) Option {
	return func(c *Chain) {
		if r != nil {
			c.rng = r
		}
	}
}

// WithSeed is shorthand for WithRand with a PCG source seeded from seed.
func WithSeed(seed uint64) Option {
	return func(c *Chain) { c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithMaxSteps sets the ceiling on random-walk iterations for a single
// Complete call. Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithLogger sets the logger for the Chain. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) { c.SetLogger(logger) }
}

// NewChain returns an untrained chain. Its state size is fixed by the first
// call to Train.
func NewChain(opts ...Option) *Chain {
	c := &Chain{
		table:    NewStateMap(),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		maxSteps: DefaultMaxSteps,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLogger sets the logger for the Chain. A nil logger is ignored.
func (c *Chain) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// StateSize returns the order of the chain, or 0 if it has never been trained.
func (c *Chain) StateSize() int {
	return c.stateSize
}

// Table returns the chain's transition table. Callers must not modify it;
// use Snapshot for an independent copy.
func (c *Chain) Table() *StateMap {
	return c.table
}

// startStates returns the keys eligible to begin a sentence, in table order.
func (c *Chain) startStates() []string {
	if !c.startsValid {
		c.starts = c.starts[:0]
		c.table.Range(func(key string, _ []string) bool {
			if isStartState(key) {
				c.starts = append(c.starts, key)
			}
			return true
		})
		c.startsValid = true
	}
	return c.starts
}
