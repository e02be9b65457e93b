package markov

import (
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// catDogCorpus is the smallest corpus with a branching start state.
var catDogCorpus = []string{"The cat sat.", "The dog ran."}

// newTrainedChain returns a seeded chain trained on sentences.
func newTrainedChain(t testing.TB, sentences []string, stateSize int, opts ...Option) *Chain {
	t.Helper()
	c := NewChain(append([]Option{WithSeed(1)}, opts...)...)
	if err := c.Train(sentences, stateSize); err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return c
}

var (
	benchmarkCorpus []string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files and returns their non-empty
// lines as sentences.
func createBenchmarkCorpus() []string {
	corpusOnce.Do(func() {
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = []string{"This is a fallback corpus for benchmarking.", "It is not very long but will prevent a crash."}
				return
			}
			for _, line := range strings.Split(string(content), "\n") {
				if strings.TrimSpace(line) != "" {
					benchmarkCorpus = append(benchmarkCorpus, line)
				}
			}
		}
	})
	return benchmarkCorpus
}
