// Package index holds the in-memory similarity index. An Index is immutable
// once built; Live publishes whole snapshots so readers never observe a
// partially rebuilt index.
package index

import (
	"fmt"
	"sort"
	"time"

	"tejas.dev/portfolio-api/internal/domain"
)

// DefaultTopK is the number of chunks returned when the caller asks for none.
const DefaultTopK = 3

// Entry is a chunk with its embedding.
type Entry struct {
	Chunk  domain.Chunk
	Vector []float32
}

// Index is an ordered, immutable set of entries sharing one dimension.
type Index struct {
	model   string
	dims    int
	builtAt time.Time
	entries []Entry
	files   []domain.SourceSummary
}

// Empty returns an index with no entries.
func Empty() *Index {
	return &Index{}
}

// New validates entries and builds an index. Every vector must be non-empty
// and share the same dimension.
func New(model string, entries []Entry, files []domain.SourceSummary) (*Index, error) {
	dims := 0
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("%w: entry %d has an empty vector", domain.ErrIndexBuild, i)
		}
		if dims == 0 {
			dims = len(e.Vector)
		}
		if len(e.Vector) != dims {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, expected %d", domain.ErrIndexBuild, i, len(e.Vector), dims)
		}
	}

	owned := make([]Entry, len(entries))
	copy(owned, entries)
	ownedFiles := make([]domain.SourceSummary, len(files))
	copy(ownedFiles, files)

	return &Index{
		model:   model,
		dims:    dims,
		builtAt: time.Now().UTC(),
		entries: owned,
		files:   ownedFiles,
	}, nil
}

func (ix *Index) Len() int           { return len(ix.entries) }
func (ix *Index) Model() string      { return ix.model }
func (ix *Index) Dimensions() int    { return ix.dims }
func (ix *Index) BuiltAt() time.Time { return ix.builtAt }

// Files returns the sources the index was built from.
func (ix *Index) Files() []domain.SourceSummary {
	out := make([]domain.SourceSummary, len(ix.files))
	copy(out, ix.files)
	return out
}

// Entries returns a copy of the entry list in chunk order.
func (ix *Index) Entries() []Entry {
	out := make([]Entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

// WithBuiltAt returns a copy of the index stamped with t. Used when an index is
// restored from a persisted snapshot.
func (ix *Index) WithBuiltAt(t time.Time) *Index {
	cp := *ix
	cp.builtAt = t
	return &cp
}

// Search returns the k entries most similar to query, highest score first.
// Equal scores keep chunk order, so results are deterministic.
func (ix *Index) Search(query []float32, k int) ([]domain.RetrievedChunk, error) {
	if len(ix.entries) == 0 {
		return []domain.RetrievedChunk{}, nil
	}
	if len(query) != ix.dims {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d: %w", len(query), ix.dims, errDimensionMismatch)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	scored := make([]domain.RetrievedChunk, 0, len(ix.entries))
	for _, e := range ix.entries {
		score, err := CosineSimilarity(query, e.Vector)
		if err != nil {
			return nil, err
		}
		scored = append(scored, domain.RetrievedChunk{Chunk: e.Chunk, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}
