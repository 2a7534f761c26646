package segmentation

import (
	"regexp"
	"strings"

	"github.com/siherrmann/retriever/model"
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	extraSpacePattern   = regexp.MustCompile(`[\t\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{202f}\x{205f}\x{3000}]{2,}`)
	urlPattern          = regexp.MustCompile(`https?://[^\s]+`)
	emailPattern        = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// Preprocess normalizes raw text before splitting.
// Three or more consecutive newlines are always collapsed to two.
// Repeated whitespace collapsing and URL/e-mail stripping are opt-in.
func Preprocess(text string, config model.SegmentationConfig) string {
	text = multiNewlinePattern.ReplaceAllString(text, "\n\n")

	if config.RemoveExtraSpaces {
		text = extraSpacePattern.ReplaceAllString(text, " ")
	}

	if config.RemoveURLsEmails {
		text = emailPattern.ReplaceAllString(text, "")
		text = urlPattern.ReplaceAllString(text, "")
		// Stripping can leave doubled spaces behind.
		text = extraSpacePattern.ReplaceAllString(text, " ")
	}

	return strings.TrimSpace(text)
}
