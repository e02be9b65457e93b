package markov

import (
	"fmt"
	"log/slog"
	"strings"
)

// Train splits every sentence on whitespace and records, for each window of
// stateSize consecutive tokens that is followed by another token, that the
// following token succeeds the window. Sentences with fewer than stateSize+1
// tokens contribute nothing.
//
// Training is additive: repeated calls accumulate into the same table. The
// first call fixes the chain's state size and later calls must pass the same
// value, otherwise ErrStateSizeMismatch is returned and the table is left
// untouched.
func (c *Chain) Train(sentences []string, stateSize int) error {
	if stateSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidStateSize, stateSize)
	}
	if c.stateSize != 0 && c.stateSize != stateSize {
		return fmt.Errorf("%w: chain has %d, got %d", ErrStateSizeMismatch, c.stateSize, stateSize)
	}
	c.stateSize = stateSize

	var transitions int
	for _, sentence := range sentences {
		transitions += c.processSentence(strings.Fields(sentence))
	}
	if transitions > 0 {
		c.startsValid = false
	}

	c.logger.Info("Training completed",
		slog.Int("state_size", stateSize),
		slog.Int("sentences_processed", len(sentences)),
		slog.Int("transitions_added", transitions),
		slog.Int("states", c.table.Len()),
	)
	return nil
}

// processSentence adds the transitions of one tokenized sentence and returns
// how many were added.
func (c *Chain) processSentence(tokens []string) int {
	var added int
	for i := 0; i+c.stateSize < len(tokens); i++ {
		key := stateKey(tokens[i : i+c.stateSize])
		c.table.Append(key, tokens[i+c.stateSize])
		added++
	}
	return added
}
