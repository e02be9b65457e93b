package markov

// ModelStats holds aggregated statistics for a single chain.
type ModelStats struct {
	StateSize      int `json:"state_size"`      // The order of the chain, 0 if untrained.
	States         int `json:"states"`          // The number of distinct states in the table.
	Transitions    int `json:"transitions"`     // The number of recorded transitions, duplicates included.
	StartStates    int `json:"start_states"`    // The number of states that can begin a sentence.
	TerminalStates int `json:"terminal_states"` // Reachable states with no recorded successor.
	Vocabulary     int `json:"vocabulary"`      // Distinct tokens across states and successors.
}

// Stats returns a snapshot of statistics for the chain.
func (c *Chain) Stats() ModelStats {
	stats := ModelStats{
		StateSize:   c.stateSize,
		States:      c.table.Len(),
		StartStates: len(c.startStates()),
	}

	vocab := make(map[string]struct{})
	terminal := make(map[string]struct{})
	c.table.Range(func(key string, list []string) bool {
		stats.Transitions += len(list)
		tokens := splitState(key)
		for _, tok := range tokens {
			vocab[tok] = struct{}{}
		}
		for _, tok := range list {
			vocab[tok] = struct{}{}
			next := stateKey(append(tokens[1:len(tokens):len(tokens)], tok))
			if _, ok := c.table.Get(next); !ok {
				terminal[next] = struct{}{}
			}
		}
		return true
	})
	stats.TerminalStates = len(terminal)
	stats.Vocabulary = len(vocab)
	return stats
}
