package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tejas.dev/portfolio-api/internal/domain"
)

func entry(pos int, label string, vec ...float32) Entry {
	return Entry{
		Chunk:  domain.Chunk{Text: fmt.Sprintf("chunk %d", pos), Label: label, Position: pos},
		Vector: vec,
	}
}

func TestCosineSimilarity(t *testing.T) {
	s, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)

	s, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s, 1e-9)

	s, err = CosineSimilarity([]float32{0, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.Zero(t, s)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	require.Error(t, err)

	_, err = CosineSimilarity(nil, []float32{1})
	require.Error(t, err)
}

func TestNew_ValidatesDimensions(t *testing.T) {
	_, err := New("m", []Entry{entry(0, "a", 1, 0), entry(1, "b", 1)}, nil)
	require.ErrorIs(t, err, domain.ErrIndexBuild)

	_, err = New("m", []Entry{entry(0, "a")}, nil)
	require.ErrorIs(t, err, domain.ErrIndexBuild)

	ix, err := New("m", []Entry{entry(0, "a", 1, 0), entry(1, "b", 0, 1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, 2, ix.Dimensions())
	assert.Equal(t, "m", ix.Model())
	assert.False(t, ix.BuiltAt().IsZero())
}

func TestSearch_OrdersByScore(t *testing.T) {
	ix, err := New("m", []Entry{
		entry(0, "far", 0, 1),
		entry(1, "near", 1, 0),
		entry(2, "mid", 1, 1),
	}, nil)
	require.NoError(t, err)

	got, err := ix.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].Label)
	assert.Equal(t, "mid", got[1].Label)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestSearch_TiesKeepChunkOrder(t *testing.T) {
	ix, err := New("m", []Entry{
		entry(0, "first", 1, 0),
		entry(1, "second", 1, 0),
		entry(2, "third", 1, 0),
	}, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		got, err := ix.Search([]float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].Label, got[1].Label, got[2].Label})
	}
}

func TestSearch_DefaultKAndSmallIndex(t *testing.T) {
	ix, err := New("m", []Entry{entry(0, "a", 1), entry(1, "b", 1), entry(2, "c", 1), entry(3, "d", 1)}, nil)
	require.NoError(t, err)

	got, err := ix.Search([]float32{1}, 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultTopK)

	got, err = ix.Search([]float32{1}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestSearch_Empty(t *testing.T) {
	got, err := Empty().Search([]float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	ix, err := New("m", []Entry{entry(0, "a", 1, 0)}, nil)
	require.NoError(t, err)

	_, err = ix.Search([]float32{1, 0, 0}, 1)
	require.Error(t, err)
}

func TestNew_CopiesInput(t *testing.T) {
	entries := []Entry{entry(0, "a", 1, 0)}
	ix, err := New("m", entries, []domain.SourceSummary{{Label: "a"}})
	require.NoError(t, err)

	entries[0] = entry(9, "changed", 0, 1)
	assert.Equal(t, "a", ix.Entries()[0].Chunk.Label)
	assert.Equal(t, "a", ix.Files()[0].Label)
}

func TestLive_StartsEmpty(t *testing.T) {
	l := NewLive()
	require.NotNil(t, l.Current())
	assert.Zero(t, l.Current().Len())
}

func TestLive_RebuildFailureKeepsPrevious(t *testing.T) {
	l := NewLive()
	first, err := l.Rebuild(context.Background(), func(context.Context) (*Index, error) {
		return New("m", []Entry{entry(0, "a", 1)}, nil)
	})
	require.NoError(t, err)

	_, err = l.Rebuild(context.Background(), func(context.Context) (*Index, error) {
		return nil, errors.New("embedding down")
	})
	require.Error(t, err)
	assert.Same(t, first, l.Current())
}

// Readers running concurrently with rebuilds must always see a complete
// snapshot: every entry of an index carries the same generation label.
func TestLive_ConcurrentReadsSeeWholeSnapshots(t *testing.T) {
	const size = 50
	build := func(gen int) BuildFunc {
		return func(context.Context) (*Index, error) {
			entries := make([]Entry, size)
			for i := range entries {
				entries[i] = entry(i, fmt.Sprintf("gen-%d", gen), 1, float32(i))
			}
			return New("m", entries, nil)
		}
	}

	l := NewLive()
	_, err := l.Rebuild(context.Background(), build(0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, err := l.Current().Search([]float32{1, 1}, size)
				if err != nil {
					errs <- err
					return
				}
				if len(got) != size {
					errs <- fmt.Errorf("got %d results", len(got))
					return
				}
				for _, c := range got {
					if c.Label != got[0].Label {
						errs <- fmt.Errorf("mixed snapshot: %s and %s", got[0].Label, c.Label)
						return
					}
				}
			}
		}()
	}

	for gen := 1; gen <= 20; gen++ {
		_, err := l.Rebuild(context.Background(), build(gen))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, "gen-20", l.Current().Entries()[0].Chunk.Label)
}

func TestLive_ConcurrentRebuildsAreSerialized(t *testing.T) {
	l := NewLive()

	var inFlight, maxInFlight atomic.Int32
	started := make(chan struct{}, 8)
	build := func(gen int) BuildFunc {
		return func(context.Context) (*Index, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			started <- struct{}{}
			time.Sleep(20 * time.Millisecond)
			return New("m", []Entry{entry(0, fmt.Sprintf("gen-%d", gen), 1)}, nil)
		}
	}

	const builders = 4
	var wg sync.WaitGroup
	for gen := 1; gen <= builders; gen++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Rebuild(context.Background(), build(gen))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, started, builders, "every rebuild ran")
	assert.Equal(t, int32(1), maxInFlight.Load(), "at most one build in flight")
	assert.Equal(t, 1, l.Current().Len())
}
