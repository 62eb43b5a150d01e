// Package chunker splits loaded records into fixed-size overlapping windows.
package chunker

import (
	"strings"

	"tejas.dev/portfolio-api/internal/domain"
)

// DefaultSize is the default number of characters per chunk.
const DefaultSize = 800

// DefaultOverlap is the default number of characters shared by consecutive chunks.
const DefaultOverlap = 100

// Chunker splits text into windows of at most size runes, each sharing
// overlap runes with the previous one.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the window size in characters.
func WithSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split trims text and cuts it into windows. Window k starts at k*(size-overlap);
// the last window ends exactly at the end of the text.
func (c *Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []string{string(runes)}
	}

	step := c.size - c.overlap
	count := Count(n, c.size, c.overlap)
	windows := make([]string, 0, count)
	for k := 0; k < count; k++ {
		start := k * step
		end := start + c.size
		if end > n {
			end = n
		}
		windows = append(windows, string(runes[start:end]))
	}
	return windows
}

// ChunkRecords splits every record and prefixes each window with its source
// label. Positions are consecutive across all records.
func (c *Chunker) ChunkRecords(records []domain.Record) []domain.Chunk {
	var chunks []domain.Chunk
	for _, r := range records {
		for _, window := range c.Split(r.Text) {
			chunks = append(chunks, domain.Chunk{
				Text:     Prefix(r.Label) + window,
				Label:    r.Label,
				Kind:     r.Kind,
				Position: len(chunks),
			})
		}
	}
	return chunks
}

// Prefix is the provenance line placed in front of every chunk.
func Prefix(label string) string {
	return "Source: " + label + "\n"
}

// Count returns the number of windows produced for a text of n characters.
func Count(n, size, overlap int) int {
	switch {
	case n <= 0:
		return 0
	case n <= size:
		return 1
	}
	step := size - overlap
	return (n - overlap + step - 1) / step
}
