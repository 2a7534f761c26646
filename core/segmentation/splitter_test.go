package segmentation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/siherrmann/retriever/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Run("Splits on the configured delimiter", func(t *testing.T) {
		config := model.SegmentationConfig{Delimiter: `\n\n`, MaxLength: 100}
		segments := Split("first block\n\nsecond block\n\nthird block", config)
		assert.Equal(t, []string{"first block", "second block", "third block"}, segments)
	})

	t.Run("Doubled delimiters leave no empty segments", func(t *testing.T) {
		config := model.SegmentationConfig{Delimiter: `\n\n`, MaxLength: 100}
		segments := Split("first\n\n\n\n\n\nsecond", config)
		assert.Equal(t, []string{"first", "second"}, segments)
	})

	t.Run("Empty input produces no segments", func(t *testing.T) {
		config := model.SegmentationConfig{MaxLength: 100}
		assert.Empty(t, Split("", config))
		assert.Empty(t, Split("\n\n\n\n", config))
	})

	t.Run("No segment exceeds the maximum length", func(t *testing.T) {
		config := model.SegmentationConfig{Delimiter: `\n\n`, MaxLength: 20, Overlap: 5}
		text := strings.Repeat("some words here and there ", 20)
		segments := Split(text, config)
		require.NotEmpty(t, segments)
		for i, segment := range segments {
			assert.LessOrEqual(t, utf8.RuneCountInString(segment), 20, "segment %d is too long: %q", i, segment)
		}
	})

	t.Run("Lengths are counted in runes not bytes", func(t *testing.T) {
		config := model.SegmentationConfig{MaxLength: 10}
		text := strings.Repeat("ä", 25)
		segments := Split(text, config)
		require.NotEmpty(t, segments)
		for _, segment := range segments {
			assert.LessOrEqual(t, utf8.RuneCountInString(segment), 10)
		}
		assert.Equal(t, 25, utf8.RuneCountInString(strings.Join(segments, "")))
	})

	t.Run("Overlap repeats the tail of the previous segment", func(t *testing.T) {
		config := model.SegmentationConfig{MaxLength: 10, Overlap: 3}
		// Digits only, no whitespace, so the window never snaps or trims.
		text := "01234567890123456789"
		segments := Split(text, config)
		require.GreaterOrEqual(t, len(segments), 2)

		firstRunes := []rune(segments[0])
		tail := string(firstRunes[len(firstRunes)-3:])
		assert.True(t, strings.HasPrefix(segments[1], tail),
			"segment %q should start with the overlap %q", segments[1], tail)
	})

	t.Run("Window cut snaps back to the last sentence end", func(t *testing.T) {
		config := model.SegmentationConfig{MaxLength: 40, Overlap: 0}
		text := "First sentence here. Second one follows. Third sentence is the longest of them all."
		segments := Split(text, config)
		require.GreaterOrEqual(t, len(segments), 2)
		assert.True(t, strings.HasSuffix(segments[0], "."),
			"first segment %q should end at a sentence boundary", segments[0])
	})

	t.Run("CJK sentence terminals are honored", func(t *testing.T) {
		config := model.SegmentationConfig{MaxLength: 12, Overlap: 0}
		text := "这是第一句。 这是第二句。 这是第三个更长的句子。"
		segments := Split(text, config)
		require.GreaterOrEqual(t, len(segments), 2)
		assert.True(t, strings.HasSuffix(segments[0], "。"),
			"first segment %q should end at a sentence boundary", segments[0])
	})

	t.Run("Oversized overlap still terminates", func(t *testing.T) {
		config := model.SegmentationConfig{MaxLength: 8, Overlap: 100}
		text := "0123456789012345678901234567890123456789"
		segments := Split(text, config)
		require.NotEmpty(t, segments)
		// minAdvance is maxLength/4, so the window moves two runes per step.
		assert.Less(t, len(segments), 40)
	})

	t.Run("Zero max length falls back to the default", func(t *testing.T) {
		config := model.SegmentationConfig{MaxLength: 0}
		text := strings.Repeat("word ", 300)
		segments := Split(text, config)
		require.NotEmpty(t, segments)
		for _, segment := range segments {
			assert.LessOrEqual(t, utf8.RuneCountInString(segment), 500)
		}
	})

	t.Run("Short block is returned unchanged", func(t *testing.T) {
		config := model.SegmentationConfig{MaxLength: 100}
		segments := Split("just a short text", config)
		assert.Equal(t, []string{"just a short text"}, segments)
	})
}

func TestResolvedDelimiter(t *testing.T) {
	t.Run("Escape sequences resolve to literal characters", func(t *testing.T) {
		config := model.SegmentationConfig{Delimiter: `\n\n`}
		assert.Equal(t, "\n\n", config.ResolvedDelimiter())

		config = model.SegmentationConfig{Delimiter: `\t`}
		assert.Equal(t, "\t", config.ResolvedDelimiter())

		config = model.SegmentationConfig{Delimiter: `\r\n`}
		assert.Equal(t, "\r\n", config.ResolvedDelimiter())
	})

	t.Run("Empty delimiter resolves to two newlines", func(t *testing.T) {
		config := model.SegmentationConfig{}
		assert.Equal(t, "\n\n", config.ResolvedDelimiter())
	})

	t.Run("Literal delimiters pass through", func(t *testing.T) {
		config := model.SegmentationConfig{Delimiter: "---"}
		assert.Equal(t, "---", config.ResolvedDelimiter())
	})
}
