package model

import "strings"

// ParentContextMode selects how parent segments are formed in hierarchical mode.
type ParentContextMode string

const (
	ParentContextFullText  ParentContextMode = "full_text"
	ParentContextParagraph ParentContextMode = "paragraph"
)

// SegmentationConfig holds the parameters for splitting text into segments.
type SegmentationConfig struct {
	// Delimiter may contain the escape sequences \n, \t and \r.
	Delimiter string `json:"delimiter"`
	// MaxLength is the maximum segment length in characters.
	MaxLength int `json:"max_length"`
	// Overlap is the number of characters shared by consecutive segments.
	Overlap int `json:"overlap"`
	// RemoveExtraSpaces collapses repeated whitespace and newlines.
	RemoveExtraSpaces bool `json:"remove_extra_spaces"`
	// RemoveURLsEmails strips URLs and e-mail addresses.
	RemoveURLsEmails bool `json:"remove_urls_emails"`
}

// DefaultSegmentationConfig returns the default splitting parameters
func DefaultSegmentationConfig() SegmentationConfig {
	return SegmentationConfig{
		Delimiter:         `\n\n`,
		MaxLength:         500,
		Overlap:           50,
		RemoveExtraSpaces: true,
	}
}

// ResolvedDelimiter returns the delimiter with escape sequences replaced
// by their literal characters. An empty delimiter resolves to two newlines.
func (c *SegmentationConfig) ResolvedDelimiter() string {
	delimiter := c.Delimiter
	if delimiter == "" {
		delimiter = `\n\n`
	}
	delimiter = strings.ReplaceAll(delimiter, `\n`, "\n")
	delimiter = strings.ReplaceAll(delimiter, `\t`, "\t")
	delimiter = strings.ReplaceAll(delimiter, `\r`, "\r")
	return delimiter
}

// HierarchicalConfig holds the parameters for parent and child segmentation.
type HierarchicalConfig struct {
	ParentContextMode ParentContextMode `json:"parent_context_mode"`
	// ParentMaxLength bounds parent segments in paragraph mode.
	ParentMaxLength int `json:"parent_max_length"`
	// Subsegmentation is applied to each parent to produce children.
	Subsegmentation SegmentationConfig `json:"subsegmentation"`
}
