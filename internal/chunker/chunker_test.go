package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tejas.dev/portfolio-api/internal/domain"
)

func TestNew_Defaults(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultSize, c.Size())
	assert.Equal(t, DefaultOverlap, c.Overlap())
}

func TestNew_ClampsOverlap(t *testing.T) {
	c := New(WithSize(100), WithOverlap(100))
	assert.Equal(t, 25, c.Overlap())

	c = New(WithSize(-1), WithOverlap(-5))
	assert.Equal(t, DefaultSize, c.Size())
	assert.Equal(t, DefaultOverlap, c.Overlap())
}

func TestSplit_Counts(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want int
	}{
		{"empty", 0, 0},
		{"single char", 1, 1},
		{"exactly size", 800, 1},
		{"one over", 801, 2},
		{"two full steps", 1500, 2},
		{"just past two", 1501, 3},
		{"long", 5000, 7},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := c.Split(strings.Repeat("a", tt.n))
			assert.Len(t, windows, tt.want)
			assert.Equal(t, tt.want, Count(tt.n, 800, 100))
		})
	}
}

func TestSplit_WindowsAndOverlap(t *testing.T) {
	c := New(WithSize(10), WithOverlap(3))
	text := "abcdefghijklmnopqrstuvwxyz"

	windows := c.Split(text)
	require.Len(t, windows, 4)
	assert.Equal(t, "abcdefghij", windows[0])
	assert.Equal(t, "hijklmnopq", windows[1])
	assert.Equal(t, "opqrstuvwx", windows[2])
	assert.Equal(t, "vwxyz", windows[3])
	assert.True(t, strings.HasSuffix(text, windows[len(windows)-1]))

	for i := 1; i < len(windows); i++ {
		prev := windows[i-1]
		assert.True(t, strings.HasPrefix(windows[i], prev[len(prev)-3:]))
	}
}

func TestSplit_CountsRunes(t *testing.T) {
	c := New(WithSize(4), WithOverlap(1))
	windows := c.Split("ñññññññ")
	require.Len(t, windows, 2)
	assert.Equal(t, "ññññ", windows[0])
	assert.Equal(t, "ññññ", windows[1])
}

func TestSplit_TrimsWhitespace(t *testing.T) {
	assert.Empty(t, New().Split("   \n\t "))
	assert.Equal(t, []string{"hi"}, New().Split("  hi \n"))
}

func TestChunkRecords(t *testing.T) {
	c := New(WithSize(10), WithOverlap(2))
	records := []domain.Record{
		{Text: "short", Label: "qna.yaml (Q&A)", Kind: domain.KindQnA},
		{Text: "", Label: "empty.txt (notes)", Kind: domain.KindNotes},
		{Text: "0123456789abcdef", Label: "resume.pdf (resume)", Kind: domain.KindResume},
	}

	chunks := c.ChunkRecords(records)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Source: qna.yaml (Q&A)\nshort", chunks[0].Text)
	assert.Equal(t, domain.KindQnA, chunks[0].Kind)
	assert.Equal(t, "Source: resume.pdf (resume)\n0123456789", chunks[1].Text)
	assert.Equal(t, "Source: resume.pdf (resume)\n89abcdef", chunks[2].Text)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
	}
}
