package segmentation

import (
	"strings"
	"unicode"

	"github.com/siherrmann/retriever/model"
)

const defaultMaxLength = 500

// sentenceTerminals are the characters a window cut snaps back to.
var sentenceTerminals = map[rune]bool{
	'。': true, '！': true, '？': true,
	'.': true, '!': true, '?': true,
}

// Split splits text into ordered segments using the configured delimiter,
// maximum length and overlap. Lengths are counted in runes. Empty segments
// are dropped, all segments are trimmed.
func Split(text string, config model.SegmentationConfig) []string {
	maxLength := config.MaxLength
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	overlap := config.Overlap
	if overlap < 0 {
		overlap = 0
	}

	var segments []string
	for _, block := range splitBlocks(text, config.ResolvedDelimiter()) {
		segments = append(segments, splitBlock(block, maxLength, overlap)...)
	}

	return segments
}

// splitBlocks splits text on the delimiter into coarse blocks,
// collapsing empty blocks left behind by doubled delimiters.
func splitBlocks(text string, delimiter string) []string {
	var blocks []string
	for _, block := range strings.Split(text, delimiter) {
		block = strings.TrimSpace(block)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// splitBlock advances a window of at most maxLength runes over the block.
// A cut that would land mid-block snaps back to the last sentence terminal
// followed by whitespace inside the window. The start pointer advances by at
// least max(1, maxLength/4) runes, so progress is guaranteed for any overlap.
func splitBlock(block string, maxLength int, overlap int) []string {
	runes := []rune(block)
	if len(runes) <= maxLength {
		return []string{block}
	}

	minAdvance := maxLength / 4
	if minAdvance < 1 {
		minAdvance = 1
	}

	var segments []string
	start := 0
	for start < len(runes) {
		end := start + maxLength
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			if cut := lastSentenceEnd(runes, start, end); cut > start {
				end = cut
			}
		}

		segment := strings.TrimSpace(string(runes[start:end]))
		if segment != "" {
			segments = append(segments, segment)
		}

		if end == len(runes) {
			break
		}

		next := end - overlap
		if next < start+minAdvance {
			next = start + minAdvance
		}
		start = next
	}

	return segments
}

// lastSentenceEnd scans backward within runes[start:end] for the last sentence
// terminal followed by whitespace and returns the cut position after it, or -1.
func lastSentenceEnd(runes []rune, start int, end int) int {
	for i := end - 1; i > start; i-- {
		if sentenceTerminals[runes[i]] && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}
	return -1
}
