package markov

import (
	"fmt"
	"log/slog"
	"strings"
)

// Generate produces length tokens by walking the chain from a random start
// state. Whenever the walk reaches a state with no recorded successor, the
// state's remaining tokens are written out, the last one gets a trailing
// period and the walk restarts from a new start state.
//
// An untrained chain or a non-positive length yields an empty string.
// ErrNoStartState is returned if no state begins with an uppercase letter.
func (c *Chain) Generate(length int) (string, error) {
	if c.stateSize == 0 || length <= 0 {
		return "", nil
	}

	out := make([]string, 0, min(length, maxPrealloc))
	state, err := c.pickStartState()
	if err != nil {
		return "", err
	}

	restarts := 0
	for len(out) < length {
		if next, ok := c.advance(state); ok {
			out = append(out, state[0])
			slide(state, next)
			continue
		}

		out, _ = flush(out, state, length)
		if len(out) >= length {
			break
		}
		if state, err = c.pickStartState(); err != nil {
			return "", err
		}
		restarts++
	}

	c.logger.Debug("Generation finished",
		slog.Int("length", length),
		slog.Int("restarts", restarts),
	)
	return strings.Join(out, " "), nil
}

// Complete continues seed until the output holds at least minLen tokens and
// ends on a sentence boundary. The last StateSize tokens of seed form the
// initial state; any earlier tokens are kept verbatim as the head of the
// output.
//
// Terminal flushes stop adding tokens once the output reaches
// MaxCompleteFlush tokens; the last token already written still gets the
// period. The walk is limited to the chain's step ceiling
// (see WithMaxSteps) and returns ErrWalkLimit past it, which guards against
// tables that cycle without ever reaching a terminal state.
//
// An untrained chain, or a seed with fewer than StateSize tokens, yields an
// empty string.
func (c *Chain) Complete(seed string, minLen int) (string, error) {
	if c.stateSize == 0 {
		return "", nil
	}
	tokens := strings.Fields(seed)
	if len(tokens) < c.stateSize {
		return "", nil
	}

	split := len(tokens) - c.stateSize
	out := make([]string, split, max(min(minLen, maxPrealloc), len(tokens)))
	copy(out, tokens[:split])
	state := make([]string, c.stateSize)
	copy(state, tokens[split:])

	// boundary is the output length at the last sentence end.
	boundary := 0
	var err error
	for steps := 0; ; steps++ {
		if steps >= c.maxSteps {
			c.logger.Warn("Completion aborted",
				slog.Int("max_steps", c.maxSteps),
				slog.Int("generated_length", len(out)),
			)
			return "", fmt.Errorf("%w: %d steps without ending a sentence past %d tokens", ErrWalkLimit, c.maxSteps, minLen)
		}

		if next, ok := c.advance(state); ok {
			out = append(out, state[0])
			slide(state, next)
			continue
		}

		var n int
		out, n = flush(out, state, MaxCompleteFlush)
		if n == 0 && len(out) > boundary {
			out[len(out)-1] += "."
		}
		boundary = len(out)
		if len(out) >= minLen {
			break
		}
		if state, err = c.pickStartState(); err != nil {
			return "", err
		}
	}

	return strings.Join(out, " "), nil
}

// pickStartState draws a start state uniformly from the eligible states and
// returns it as a fresh token slice.
func (c *Chain) pickStartState() ([]string, error) {
	starts := c.startStates()
	if len(starts) == 0 {
		return nil, ErrNoStartState
	}
	return splitState(starts[c.rng.IntN(len(starts))]), nil
}

// advance draws a successor of state uniformly from its successor list.
// Duplicates in the list make frequent successors proportionally more
// likely. It reports false if the state was never seen as a predecessor.
func (c *Chain) advance(state []string) (string, bool) {
	list, ok := c.table.Get(stateKey(state))
	if !ok || len(list) == 0 {
		return "", false
	}
	return list[c.rng.IntN(len(list))], true
}

// slide drops the first token of state and appends next, in place.
func slide(state []string, next string) {
	copy(state, state[1:])
	state[len(state)-1] = next
}

// flush appends the tokens of a terminal state to out without letting out
// grow past limit, and marks the last appended token with a period. It returns
// the extended slice and the number of tokens appended.
func flush(out, state []string, limit int) ([]string, int) {
	var n int
	for n < len(state) && len(out) < limit {
		out = append(out, state[n])
		n++
	}
	if n > 0 {
		out[len(out)-1] += "."
	}
	return out, n
}
