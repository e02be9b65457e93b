/*
Package markov implements a variable-order Markov chain text generator.

A Chain learns which token follows each run of StateSize tokens in a corpus of
sentences, then uses those observations to write new sentences (Generate) or
to continue a partial one (Complete). Successor lists keep every observed
occurrence, so sampling uniformly from a list weights tokens by frequency
without explicit probabilities.

The random source is injected through options, which makes generation
reproducible in tests:

	c := markov.NewChain(markov.WithSeed(42))
	if err := c.Train(sentences, 2); err != nil {
		return err
	}
	text, err := c.Generate(50)

Trained chains are exported as JSON of the form
{"state_map": {state: [successors...]}, "state_size": n}, with state and
successor order preserved.
*/
package markov
