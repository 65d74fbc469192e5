package extract

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

const MIMEHTML = "text/html"

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	blockTags  = regexp.MustCompile(`(?i)</?(p|div|br|li|tr|h[1-6]|section|article|pre|blockquote)[^>]*>`)
	dropBlocks = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	spaceRuns  = regexp.MustCompile(`[ \t\f\v]+`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

func policy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// htmlText strips every element and keeps block boundaries as line breaks.
func htmlText(data []byte) (string, error) {
	s, err := plainText(data)
	if err != nil {
		return "", err
	}
	s = dropBlocks.ReplaceAllString(s, "")
	s = blockTags.ReplaceAllString(s, "\n")
	s = html.UnescapeString(policy().Sanitize(s))

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	s = blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s), nil
}
