// Package pool provides typed object pooling.
//
// Pool wraps sync.Pool with a factory, an optional reset hook and usage
// statistics. The wire encoder uses it to recycle FlatBuffers builders
// between messages:
//
//	builders := pool.New(
//	    func() *flatbuffers.Builder { return flatbuffers.NewBuilder(1024) },
//	    func(b *flatbuffers.Builder) { b.Reset() },
//	)
//	b := builders.Get()
//	defer builders.Put(b)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a type-safe object pool. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		hits      int64
		misses    int64
	}
}

// New creates a pool. newFn builds an object when the pool is empty; reset,
// when non-nil, runs on every object handed back through Put.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		atomic.AddInt64(&p.stats.misses, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object, allocating one when the pool is empty.
func (p *Pool[T]) Get() T {
	misses := atomic.LoadInt64(&p.stats.misses)
	obj := p.pool.Get().(T)
	if atomic.LoadInt64(&p.stats.misses) == misses {
		atomic.AddInt64(&p.stats.hits, 1)
	}
	atomic.AddInt64(&p.stats.inUse, 1)
	return obj
}

// Put resets obj and returns it to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Discard marks obj as no longer in use without returning it, so an
// oversized object can be left to the garbage collector.
func (p *Pool[T]) Discard(T) {
	atomic.AddInt64(&p.stats.inUse, -1)
}

// Stats returns the number of objects allocated, currently checked out,
// served from the pool and allocated on demand. Hits and misses are
// approximate under concurrent use.
func (p *Pool[T]) Stats() (allocated, inUse, hits, misses int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.hits),
		atomic.LoadInt64(&p.stats.misses)
}
