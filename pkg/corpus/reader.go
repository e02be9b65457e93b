package corpus

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// maxLineLength bounds a single input line. Book paragraphs are sometimes
// stored as one line, so this is far above bufio's default.
const maxLineLength = 1 << 20

// Reader splits text into sentences. Its behavior can be customized with
// functional options.
type Reader struct {
	sentenceRegex *regexp.Regexp
	minTokens     int
	clean         bool
	err           error
}

// Option configures a Reader.
type Option func(*Reader)

// WithSentenceRegex sets the regex used to find sentences within a paragraph.
// Text after the last match in a paragraph is kept as a final sentence.
// An invalid pattern makes every NewStream call fail.
// Default: `[^.!?]+[.!?]+["')\]]*`
func WithSentenceRegex(sentenceRegex string) Option {
	return func(r *Reader) {
		re, err := regexp.Compile(sentenceRegex)
		if err != nil {
			r.err = fmt.Errorf("invalid sentence regex %q: %w", sentenceRegex, err)
			return
		}
		r.sentenceRegex = re
	}
}

// WithMinTokens drops sentences with fewer than n whitespace separated
// tokens. Default: 1
func WithMinTokens(n int) Option {
	return func(r *Reader) {
		r.minTokens = n
	}
}

// WithClean runs Clean over the whole input before splitting it. This reads
// the input fully into memory. Default: false
func WithClean(clean bool) Option {
	return func(r *Reader) {
		r.clean = clean
	}
}

// NewReader creates a new Reader with default settings, which can be
// overridden by providing one or more Option functions.
func NewReader(opts ...Option) *Reader {
	r := &Reader{
		// A run of text up to and including sentence-ending punctuation,
		// followed by any closing quotes or brackets.
		sentenceRegex: regexp.MustCompile(`[^.!?]+[.!?]+["')\]]*`),
		minTokens:     1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewStream returns a Stream over the sentences of src.
func (r *Reader) NewStream(src io.Reader) (*Stream, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.clean {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus: %w", err)
		}
		src = strings.NewReader(Clean(string(data)))
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &Stream{
		scanner:       scanner,
		sentenceRegex: r.sentenceRegex,
		minTokens:     r.minTokens,
	}, nil
}

// ReadSentences reads src to the end and returns its sentences in order.
func (r *Reader) ReadSentences(src io.Reader) ([]string, error) {
	stream, err := r.NewStream(src)
	if err != nil {
		return nil, err
	}
	var sentences []string
	for {
		sentence, err := stream.Next()
		if err == io.EOF {
			return sentences, nil
		}
		if err != nil {
			return nil, err
		}
		sentences = append(sentences, sentence)
	}
}

// Stream yields sentences one at a time. Lines are joined with single spaces
// until a blank line ends the paragraph, so a sentence never spans two
// paragraphs.
type Stream struct {
	scanner       *bufio.Scanner
	sentenceRegex *regexp.Regexp
	minTokens     int
	paragraph     bytes.Buffer
	buffer        []string
	done          bool
}

// Next returns the next sentence with its whitespace normalized to single
// spaces. When the stream is exhausted, it returns io.EOF.
func (s *Stream) Next() (string, error) {
	for len(s.buffer) == 0 { // Loop until we have sentences
		if s.done {
			return "", io.EOF
		}
		if err := s.fill(); err != nil {
			return "", fmt.Errorf("failed to scan corpus: %w", err)
		}
	}

	sentence := s.buffer[0]
	s.buffer = s.buffer[1:]
	return sentence, nil
}

// fill reads up to the end of the next paragraph and splits it into the
// buffer.
func (s *Stream) fill() error {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			if s.paragraph.Len() > 0 {
				s.splitParagraph()
				return nil
			}
			continue
		}
		if s.paragraph.Len() > 0 {
			s.paragraph.WriteByte(' ')
		}
		s.paragraph.Write(line)
	}
	if err := s.scanner.Err(); err != nil {
		return err
	}
	s.done = true
	s.splitParagraph()
	return nil
}

func (s *Stream) splitParagraph() {
	text := s.paragraph.String()
	s.paragraph.Reset()

	last := 0
	for _, loc := range s.sentenceRegex.FindAllStringIndex(text, -1) {
		s.add(text[loc[0]:loc[1]])
		last = loc[1]
	}
	s.add(text[last:])
}

func (s *Stream) add(sentence string) {
	tokens := strings.Fields(sentence)
	if len(tokens) == 0 || len(tokens) < s.minTokens {
		return
	}
	s.buffer = append(s.buffer, strings.Join(tokens, " "))
}
