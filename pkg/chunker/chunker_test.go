package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"lite-rag-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitScenario(t *testing.T) {
	text := strings.Repeat("a", 1200)

	chunks, err := Split(text, 500, 50, map[string]any{"source": "doc.txt"})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	wantStarts := []int{0, 450, 900}
	wantLens := []int{500, 500, 300}
	for i, c := range chunks {
		assert.Equal(t, i, c.Order)
		assert.Equal(t, wantStarts[i], c.Metadata[MetaStartOffset])
		assert.Len(t, []rune(c.Content), wantLens[i])
		assert.Equal(t, "doc.txt", c.Metadata["source"])
	}
}

func TestSplitOverlapIsExact(t *testing.T) {
	text := "零一二三四五六七八九abcdefghijklmnopqrstuvwxyz"
	runes := []rune(text)

	for size := 1; size <= 12; size++ {
		for overlap := 0; overlap < size; overlap++ {
			chunks, err := Split(text, size, overlap, nil)
			require.NoError(t, err)

			for i, c := range chunks {
				assert.Equal(t, i, c.Order)
				start := c.Metadata[MetaStartOffset].(int)
				end := c.Metadata[MetaEndOffset].(int)
				assert.Equal(t, string(runes[start:end]), c.Content)
				if i > 0 {
					prev := chunks[i-1]
					prevStart := prev.Metadata[MetaStartOffset].(int)
					prevEnd := prev.Metadata[MetaEndOffset].(int)
					assert.Equal(t, size-overlap, start-prevStart)
					if i < len(chunks)-1 {
						assert.Equal(t, overlap, prevEnd-start)
					}
				}
			}
			last := chunks[len(chunks)-1]
			assert.Equal(t, len(runes), last.Metadata[MetaEndOffset])
		}
	}
}

func TestSplitShortText(t *testing.T) {
	chunks, err := Split("The sky is blue.", 500, 50, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "The sky is blue.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Order)
}

func TestSplitEmptyText(t *testing.T) {
	chunks, err := Split("", 10, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitInvalidParameters(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{10, 10},
		{10, 11},
		{1, 5},
		{0, 0},
		{10, -1},
	}
	for _, c := range cases {
		_, err := Split("some text", c.size, c.overlap, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrInvalidParameter), "size=%d overlap=%d", c.size, c.overlap)
	}
}

func TestSplitDoesNotShareMetadata(t *testing.T) {
	base := map[string]any{"k": "v"}
	chunks, err := Split(strings.Repeat("x", 30), 10, 0, base)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	chunks[0].Metadata["k"] = "changed"
	assert.Equal(t, "v", chunks[1].Metadata["k"])
	assert.Equal(t, "v", base["k"])
	_, touched := base[MetaStartOffset]
	assert.False(t, touched)
}

func TestSplitDocument(t *testing.T) {
	s, err := New(UnitRune, "")
	require.NoError(t, err)

	chunks, err := s.SplitDocument(Document{ProjectID: "p1", FileID: "f1", Text: strings.Repeat("b", 25)}, 10, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.Equal(t, "p1", c.ProjectID)
		assert.Equal(t, "f1", c.FileID)
	}
}

func TestNewUnknownUnit(t *testing.T) {
	_, err := New("word", "")
	assert.True(t, errors.Is(err, errs.ErrInvalidParameter))
}

func newTokenSplitter(t *testing.T) *Splitter {
	t.Helper()
	s, err := New(UnitToken, "cl100k_base")
	require.NoError(t, err)
	require.Equal(t, UnitToken, s.Unit())
	return s
}

func TestTokenSplitOverlapIsExact(t *testing.T) {
	s := newTokenSplitter(t)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 8)
	total := len(s.enc.Encode(text, nil, nil))

	for _, tc := range []struct{ size, overlap int }{{10, 0}, {10, 3}, {7, 6}, {50, 10}} {
		chunks, err := s.Split(text, tc.size, tc.overlap, nil)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		var rebuilt strings.Builder
		for i, c := range chunks {
			assert.Equal(t, i, c.Order)
			start := c.Metadata[MetaStartOffset].(int)
			end := c.Metadata[MetaEndOffset].(int)
			if i < len(chunks)-1 {
				assert.Equal(t, tc.size, end-start)
			}
			if i > 0 {
				prevStart := chunks[i-1].Metadata[MetaStartOffset].(int)
				assert.Equal(t, tc.size-tc.overlap, start-prevStart)
			}
			if tc.overlap == 0 {
				rebuilt.WriteString(c.Content)
			}
		}
		assert.Equal(t, total, chunks[len(chunks)-1].Metadata[MetaEndOffset])
		if tc.overlap == 0 {
			assert.Equal(t, text, rebuilt.String())
		}
	}
}

func TestTokenSplitKeepsCharactersWhole(t *testing.T) {
	s := newTokenSplitter(t)
	text := strings.Repeat("向量块🙂🙂🙂检索增强生成，", 6)

	for size := 1; size <= 8; size++ {
		for overlap := 0; overlap < size; overlap++ {
			chunks, err := s.Split(text, size, overlap, nil)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			prevStart, prevEnd := 0, 0
			for i, c := range chunks {
				assert.Equal(t, i, c.Order)
				assert.True(t, utf8.ValidString(c.Content), "size=%d overlap=%d chunk=%d: %q", size, overlap, i, c.Content)
				assert.NotEmpty(t, c.Content)

				start := c.Metadata[MetaStartOffset].(int)
				end := c.Metadata[MetaEndOffset].(int)
				assert.Less(t, start, end)
				if i > 0 {
					assert.GreaterOrEqual(t, start, prevStart)
					// 块之间没有空隙
					assert.LessOrEqual(t, start, prevEnd)
				}
				prevStart, prevEnd = start, end
			}
			assert.Equal(t, 0, chunks[0].Metadata[MetaStartOffset])
			assert.True(t, strings.HasPrefix(text, chunks[0].Content))
			assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1].Content))
		}
	}
}
