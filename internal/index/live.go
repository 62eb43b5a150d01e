package index

import (
	"context"
	"sync"
	"sync/atomic"
)

// BuildFunc produces a complete replacement index.
type BuildFunc func(ctx context.Context) (*Index, error)

// Live is the currently served index. Reads are lock-free; rebuilds are
// serialized and publish the new index only when the build succeeds.
type Live struct {
	current atomic.Pointer[Index]
	buildMu sync.Mutex
}

func NewLive() *Live {
	l := &Live{}
	l.current.Store(Empty())
	return l
}

// Current returns the served snapshot. It is never nil.
func (l *Live) Current() *Index {
	return l.current.Load()
}

// Swap publishes ix unconditionally.
func (l *Live) Swap(ix *Index) {
	if ix == nil {
		ix = Empty()
	}
	l.current.Store(ix)
}

// Rebuild runs build while holding the build lock and swaps in its result. On
// error the previous index stays in place.
func (l *Live) Rebuild(ctx context.Context, build BuildFunc) (*Index, error) {
	l.buildMu.Lock()
	defer l.buildMu.Unlock()

	ix, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if ix == nil {
		ix = Empty()
	}
	l.current.Store(ix)
	return ix, nil
}
