package bridge

import (
	"regexp"
	"strings"
)

var (
	thinkTagPattern      = regexp.MustCompile(`(?is)<think>.*?</think>`)
	excessNewlinePattern = regexp.MustCompile(`\n\s*\n\s*\n`)
)

// stripThinkTags removes <think>...</think> reasoning blocks that some models
// emit before their answer, then collapses the whitespace left behind.
func stripThinkTags(text string) string {
	filtered := thinkTagPattern.ReplaceAllString(text, "")
	filtered = excessNewlinePattern.ReplaceAllString(filtered, "\n\n")
	return strings.TrimSpace(filtered)
}
