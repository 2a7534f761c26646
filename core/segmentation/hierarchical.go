package segmentation

import (
	"github.com/siherrmann/retriever/model"
)

// ParentSegment is a parent chunk together with its non-empty children.
type ParentSegment struct {
	Content  string
	Children []string
}

// SplitHierarchical splits text into parent segments with child segments.
// Parents are either the whole document (full_text mode) or length bounded
// splits without overlap (paragraph mode). Children are produced by re-running
// the normal splitter over each parent with the subsegmentation config.
// Parents without at least one non-empty child are dropped.
func SplitHierarchical(text string, config model.SegmentationConfig, hierarchical model.HierarchicalConfig) []ParentSegment {
	var parentTexts []string
	switch hierarchical.ParentContextMode {
	case model.ParentContextFullText:
		parentTexts = []string{text}
	default:
		parentConfig := config
		if hierarchical.ParentMaxLength > 0 {
			parentConfig.MaxLength = hierarchical.ParentMaxLength
		}
		parentConfig.Overlap = 0
		parentTexts = Split(text, parentConfig)
	}

	subConfig := hierarchical.Subsegmentation
	subConfig.Overlap = 0

	var parents []ParentSegment
	for _, parentText := range parentTexts {
		parentText = Preprocess(parentText, config)
		if parentText == "" {
			continue
		}

		children := Split(parentText, subConfig)
		if len(children) == 0 {
			continue
		}

		parents = append(parents, ParentSegment{
			Content:  parentText,
			Children: children,
		})
	}

	return parents
}
