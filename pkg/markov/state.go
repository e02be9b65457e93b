package markov

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stateKey returns the canonical key of a state: its tokens joined by single
// spaces.
func stateKey(tokens []string) string {
	return strings.Join(tokens, " ")
}

// splitState is the inverse of stateKey.
func splitState(key string) []string {
	return strings.Split(key, " ")
}

// isStartState reports whether a state can begin a sentence, which is the
// case when its first character is an uppercase letter.
func isStartState(key string) bool {
	r, _ := utf8.DecodeRuneInString(key)
	return r != utf8.RuneError && unicode.IsUpper(r)
}
