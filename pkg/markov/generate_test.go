package markov

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

var storyCorpus = []string{
	"The cat sat on the mat.",
	"The dog sat on the rug.",
	"A bird flew over the house.",
	"The bird sang a song.",
	"My cat chased the dog around the house.",
}

func TestGenerateUntrained(t *testing.T) {
	c := NewChain()
	for _, length := range []int{0, 1, 25} {
		output, err := c.Generate(length)
		if err != nil {
			t.Errorf("Generate(%d) on untrained chain: unexpected error %v", length, err)
		}
		if output != "" {
			t.Errorf("Generate(%d) on untrained chain: expected empty output, got %q", length, output)
		}
	}
}

func TestGenerateZeroLength(t *testing.T) {
	c := newTrainedChain(t, catDogCorpus, 1)
	output, err := c.Generate(0)
	if err != nil || output != "" {
		t.Errorf("Generate(0) = %q, %v; want empty output and no error", output, err)
	}
}

func TestGenerateStartsAtStartState(t *testing.T) {
	expected1 := "The cat sat.."
	expected2 := "The dog ran.."
	seen := make(map[string]bool)

	for seed := uint64(0); seed < 32; seed++ {
		c := NewChain(WithSeed(seed))
		if err := c.Train(catDogCorpus, 1); err != nil {
			t.Fatalf("Train() failed: %v", err)
		}
		output, err := c.Generate(3)
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if output != expected1 && output != expected2 {
			t.Fatalf("Generate() got = %q, want one of [%q, %q]", output, expected1, expected2)
		}
		seen[output] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both branches after \"The\" to be drawn, saw %v", seen)
	}
}

func TestGenerateEmitsExactLength(t *testing.T) {
	for _, stateSize := range []int{1, 2, 3} {
		c := newTrainedChain(t, storyCorpus, stateSize)
		for length := 1; length <= 40; length++ {
			t.Run(fmt.Sprintf("Order%dLength%d", stateSize, length), func(t *testing.T) {
				output, err := c.Generate(length)
				if err != nil {
					t.Fatalf("Generate() failed: %v", err)
				}
				if n := len(strings.Fields(output)); n != length {
					t.Errorf("expected %d tokens, got %d: %q", length, n, output)
				}
				first, _, _ := strings.Cut(output, " ")
				if !isStartState(first) {
					t.Errorf("output must begin with a start state, got %q", output)
				}
			})
		}
	}
}

func TestGenerateRestartsAfterTerminal(t *testing.T) {
	c := newTrainedChain(t, catDogCorpus, 1)
	output, err := c.Generate(9)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	tokens := strings.Fields(output)
	for i := 0; i < len(tokens); i += 3 {
		if tokens[i] != "The" {
			t.Errorf("token %d: expected a restart at \"The\", got %q in %q", i, tokens[i], output)
		}
	}
	if !strings.HasSuffix(output, "..") {
		t.Errorf("expected the final clause to end with a period, got %q", output)
	}
}

func TestGenerateNoStartState(t *testing.T) {
	c := newTrainedChain(t, []string{"all lowercase words here.", "nothing starts a sentence."}, 1)
	output, err := c.Generate(5)
	if !errors.Is(err, ErrNoStartState) {
		t.Errorf("expected ErrNoStartState, got %v", err)
	}
	if output != "" {
		t.Errorf("expected empty output on error, got %q", output)
	}
}

func TestGenerateIsReproducibleWithSeed(t *testing.T) {
	a := newTrainedChain(t, storyCorpus, 1, WithSeed(7))
	b := newTrainedChain(t, storyCorpus, 1, WithSeed(7))
	for i := 0; i < 5; i++ {
		outA, errA := a.Generate(30)
		outB, errB := b.Generate(30)
		if errA != nil || errB != nil {
			t.Fatalf("Generate() failed: %v, %v", errA, errB)
		}
		if outA != outB {
			t.Fatalf("same seed produced different output:\n%q\n%q", outA, outB)
		}
	}
}

func TestAdvance(t *testing.T) {
	c := newTrainedChain(t, catDogCorpus, 1)

	if _, ok := c.advance([]string{"sat."}); ok {
		t.Error("expected no successor for a state never seen as a predecessor")
	}

	seen := make(map[string]int)
	for i := 0; i < 200; i++ {
		next, ok := c.advance([]string{"The"})
		if !ok {
			t.Fatal("expected a successor for \"The\"")
		}
		if next != "cat" && next != "dog" {
			t.Fatalf("advance returned %q, which is not a recorded successor", next)
		}
		seen[next]++
	}
	if seen["cat"] == 0 || seen["dog"] == 0 {
		t.Errorf("expected both successors to be drawn, got %v", seen)
	}
}

func TestPickStartState(t *testing.T) {
	c := newTrainedChain(t, catDogCorpus, 1)
	for i := 0; i < 20; i++ {
		state, err := c.pickStartState()
		if err != nil {
			t.Fatalf("pickStartState() failed: %v", err)
		}
		if stateKey(state) != "The" {
			t.Fatalf("expected start state \"The\", got %q", stateKey(state))
		}
	}

	if _, err := NewChain().pickStartState(); !errors.Is(err, ErrNoStartState) {
		t.Errorf("expected ErrNoStartState on an empty table, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	testCases := []struct {
		name      string
		corpus    []string
		stateSize int
		seed      string
		minLen    int
		expected  []string
	}{
		{
			name:      "Seed is a start state",
			corpus:    catDogCorpus,
			stateSize: 1,
			seed:      "The",
			expected:  []string{"The cat sat..", "The dog ran.."},
		},
		{
			name:      "Prefix is kept verbatim",
			corpus:    catDogCorpus,
			stateSize: 1,
			seed:      "I  think   The",
			expected:  []string{"I think The cat sat..", "I think The dog ran.."},
		},
		{
			name:      "Unknown state ends the sentence at once",
			corpus:    catDogCorpus,
			stateSize: 1,
			seed:      "Hello world",
			expected:  []string{"Hello world."},
		},
		{
			name:      "Order two seed",
			corpus:    []string{"The cat sat on the mat"},
			stateSize: 2,
			seed:      "Look at the cat sat",
			expected:  []string{"Look at the cat sat on the mat."},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTrainedChain(t, tc.corpus, tc.stateSize)
			output, err := c.Complete(tc.seed, tc.minLen)
			if err != nil {
				t.Fatalf("Complete() failed: %v", err)
			}
			for _, want := range tc.expected {
				if output == want {
					return
				}
			}
			t.Errorf("Complete(%q) got = %q, want one of %q", tc.seed, output, tc.expected)
		})
	}
}

func TestCompleteEmptyResults(t *testing.T) {
	if output, err := NewChain().Complete("The cat", 3); output != "" || err != nil {
		t.Errorf("untrained Complete() = %q, %v; want empty output and no error", output, err)
	}

	c := newTrainedChain(t, storyCorpus, 3)
	for _, minLen := range []int{0, 5, 100} {
		output, err := c.Complete("The cat", minLen)
		if output != "" || err != nil {
			t.Errorf("Complete(minLen=%d) with a short seed = %q, %v; want empty output and no error", minLen, output, err)
		}
	}
}

func TestCompleteReachesMinLength(t *testing.T) {
	c := newTrainedChain(t, catDogCorpus, 1)
	for _, minLen := range []int{1, 4, 7, 20} {
		output, err := c.Complete("The", minLen)
		if err != nil {
			t.Fatalf("Complete() failed: %v", err)
		}
		tokens := strings.Fields(output)
		if len(tokens) < minLen {
			t.Errorf("Complete(minLen=%d) returned only %d tokens: %q", minLen, len(tokens), output)
		}
		if len(tokens)%3 != 0 || !strings.HasSuffix(output, "..") {
			t.Errorf("Complete(minLen=%d) must end on a sentence boundary, got %q", minLen, output)
		}
	}
}

func TestCompleteFlushCap(t *testing.T) {
	c := newTrainedChain(t, catDogCorpus, 1)
	words := make([]string, MaxCompleteFlush+20)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	seed := strings.Join(words, " ")

	output, err := c.Complete(seed, 0)
	if err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	// The seed head already fills the output, so the terminal state adds
	// nothing but the last head token still ends the sentence.
	expected := strings.Join(words[:len(words)-1], " ") + "."
	if output != expected {
		t.Errorf("expected the head to end with a period and nothing flushed past the cap, got %d tokens ending in %q",
			len(strings.Fields(output)), output[max(0, len(output)-8):])
	}
}

func TestCompleteEndsOnSentenceBoundary(t *testing.T) {
	for _, stateSize := range []int{1, 2} {
		seed := strings.Join(strings.Fields(storyCorpus[0])[:stateSize], " ")
		for _, minLen := range []int{0, 1, 5, 20, MaxCompleteFlush - 1, MaxCompleteFlush + 50} {
			for s := uint64(0); s < 20; s++ {
				c := NewChain(WithSeed(s))
				if err := c.Train(storyCorpus, stateSize); err != nil {
					t.Fatalf("Train() failed: %v", err)
				}
				output, err := c.Complete(seed, minLen)
				if err != nil {
					t.Errorf("Complete(%q, %d) seed %d: unexpected error %v", seed, minLen, s, err)
					continue
				}
				words := strings.Fields(output)
				if len(words) < minLen {
					t.Errorf("Complete(%q, %d) seed %d: got %d tokens", seed, minLen, s, len(words))
				}
				if !strings.HasSuffix(output, ".") {
					t.Errorf("Complete(%q, %d) seed %d: output does not end a sentence: %q", seed, minLen, s, output)
				}
				if strings.HasSuffix(output, "...") {
					t.Errorf("Complete(%q, %d) seed %d: last token marked more than once: %q", seed, minLen, s, output)
				}
			}
		}
	}
}

func TestHugeLengthsDoNotPreallocate(t *testing.T) {
	// No start state, so both calls fail before producing much output.
	c := newTrainedChain(t, []string{"one fish two fish."}, 1)

	if _, err := c.Generate(1 << 62); !errors.Is(err, ErrNoStartState) {
		t.Errorf("Generate(1<<62): expected ErrNoStartState, got %v", err)
	}
	if _, err := c.Complete("one", 1<<62); !errors.Is(err, ErrNoStartState) {
		t.Errorf("Complete(\"one\", 1<<62): expected ErrNoStartState, got %v", err)
	}
}

func TestCompleteWalkLimit(t *testing.T) {
	// "A" and "b" only ever lead to each other, so no sentence ever ends.
	c := newTrainedChain(t, []string{"A b A b A b A"}, 1, WithMaxSteps(50))
	output, err := c.Complete("A", 1)
	if !errors.Is(err, ErrWalkLimit) {
		t.Fatalf("expected ErrWalkLimit, got %v", err)
	}
	if output != "" {
		t.Errorf("expected empty output on error, got %q", output)
	}
}

func TestCompleteNoStartState(t *testing.T) {
	c := newTrainedChain(t, []string{"one fish two fish."}, 1)
	_, err := c.Complete("one", 50)
	if !errors.Is(err, ErrNoStartState) {
		t.Errorf("expected ErrNoStartState when a restart is needed, got %v", err)
	}
}

func BenchmarkGenerate(b *testing.B) {
	corpus := createBenchmarkCorpus()
	c := NewChain()
	if err := c.Train(corpus, 2); err != nil {
		b.Fatalf("Train() setup for benchmark failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := c.Generate(50)
		b.SetBytes(int64(len(s)))
		if err != nil {
			b.Fatalf("Generate() failed: %v", err)
		}
	}
}
