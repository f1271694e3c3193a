// Package pool is a generic sync.Pool wrapper with live/total counters,
// used by the octree to keep sibling nodes spatially close in
// memory and node allocation amortized O(1).
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool hands out *T values and tracks live/total allocation counts.
type Pool[T any] struct {
	sync.Pool

	totalAllocated atomic.Int64
	currentLive    atomic.Int64
}

// New creates a pool whose New func builds a zero T and runs reset (if
// non-nil) on values returned via Put before they go back on the shelf.
func New[T any]() *Pool[T] {
	p := &Pool[T]{}
	p.Pool.New = func() any {
		p.totalAllocated.Add(1)
		return new(T)
	}
	return p
}

// Get retrieves a *T from the pool, or allocates a new one.
func (p *Pool[T]) Get() *T {
	if p == nil {
		return new(T)
	}
	p.currentLive.Add(1)
	return p.Pool.Get().(*T)
}

// Put returns v to the pool after calling reset, if provided.
func (p *Pool[T]) Put(v *T, reset func(*T)) {
	if p == nil {
		return
	}
	p.currentLive.Add(-1)
	if reset != nil {
		reset(v)
	}
	p.Pool.Put(v)
}

// Stats returns the number of currently live (checked-out) values and the
// total ever allocated.
func (p *Pool[T]) Stats() (live, total int64) {
	if p == nil {
		return 0, 0
	}
	return p.currentLive.Load(), p.totalAllocated.Load()
}
