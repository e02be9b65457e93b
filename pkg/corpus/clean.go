package corpus

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/natefinch/atomic"
)

var (
	gutenbergStart   = regexp.MustCompile(`(?s)\*\*\* START OF.*?\*\*\*`)
	gutenbergEnd     = regexp.MustCompile(`(?s)\*\*\* END OF.*?\*\*\*`)
	contentsBlock    = regexp.MustCompile(`(?s)CONTENTS\..*?(?:\n\n|\z)`)
	illustrationList = regexp.MustCompile(`(?s)ILLUSTRATIONS\..*?(?:\n\n|\z)`)
	illustrationNote = regexp.MustCompile(`(?s)\[Illustration:.*?\]`)
	chapterTitle     = regexp.MustCompile(`_CHAPTER .*?_.*?\n`)
	blankLineRun     = regexp.MustCompile(`\n{2,}`)
)

// Clean strips the non-narrative parts of a Project Gutenberg book: the
// start and end licence markers, the CONTENTS and ILLUSTRATIONS blocks,
// inline [Illustration: ...] notes and _CHAPTER ..._ title lines. Runs of
// blank lines collapse to a single paragraph break and the result is trimmed.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	text = gutenbergStart.ReplaceAllString(text, "")
	text = gutenbergEnd.ReplaceAllString(text, "")

	text = contentsBlock.ReplaceAllString(text, "")
	text = illustrationList.ReplaceAllString(text, "")
	text = illustrationNote.ReplaceAllString(text, "")

	text = chapterTitle.ReplaceAllString(text, "")

	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// CleanFile cleans the book at inPath and writes the result to outPath,
// replacing it atomically.
func CleanFile(inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", inPath, err)
	}
	if err = atomic.WriteFile(outPath, strings.NewReader(Clean(string(data)))); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	return nil
}
