// Package pool implements SimplePool, a fixed-capacity resource pool with
// a parked-waiter admission queue.
package pool

import (
	"context"
	"sync"
)

// ResourceManager creates, validates and recycles pooled resources. CA and
// RA are caller-supplied arguments threaded through to Create/Recycle.
type ResourceManager[R any, CA any, RA any] interface {
	Create(ca CA) (R, error)
	IsInvalid(r *R) bool
	Recycle(ra RA, r *R) error
}

type slot[R any] struct {
	mu  sync.Mutex
	res *R
	set bool
}

// SimplePool is a pool of N resources. Free slot indices are kept on a
// stack, so the most recently released slot is handed out first; an
// admitted caller holds that slot's lock from Get until Release. Waiters
// are served LIFO (most recently parked goroutine first) — acceptable
// given the pool's expected short hold time; callers needing strict
// fairness should not rely on ordering here.
type SimplePool[R any, CA any, RA any] struct {
	mgr ResourceManager[R, CA, RA]

	mu        sync.Mutex
	slots     []*slot[R]
	available []int
	wakers    []chan struct{}
}

// New returns a SimplePool with the given fixed capacity.
func New[R any, CA any, RA any](capacity int, mgr ResourceManager[R, CA, RA]) *SimplePool[R, CA, RA] {
	p := &SimplePool[R, CA, RA]{
		mgr:   mgr,
		slots: make([]*slot[R], capacity),
	}
	for i := range p.slots {
		p.slots[i] = &slot[R]{}
		p.available = append(p.available, i)
	}
	return p
}

// Guard ties a resource to the slot lock that protects it; Release must
// be called exactly once to return the slot to the pool.
type Guard[R any, CA any, RA any] struct {
	pool *SimplePool[R, CA, RA]
	idx  int
	slot *slot[R]
}

// Get acquires a slot, blocking until one is free or ctx is done. On
// acquisition it lazily creates the resource (first use of the slot) or
// recycles it (if the manager reports it invalid).
func (p *SimplePool[R, CA, RA]) Get(ctx context.Context, ca CA, ra RA) (*Guard[R, CA, RA], error) {
	idx, err := p.admit(ctx)
	if err != nil {
		return nil, err
	}

	s := p.slots[idx]
	s.mu.Lock()

	if !s.set {
		r, err := p.mgr.Create(ca)
		if err != nil {
			s.mu.Unlock()
			p.release(idx)
			return nil, err
		}
		s.res = &r
		s.set = true
	} else if p.mgr.IsInvalid(s.res) {
		if err := p.mgr.Recycle(ra, s.res); err != nil {
			s.mu.Unlock()
			p.release(idx)
			return nil, err
		}
	}

	return &Guard[R, CA, RA]{pool: p, idx: idx, slot: s}, nil
}

// admit waits for a free slot index, parking on a per-call channel when
// the pool is fully checked out.
func (p *SimplePool[R, CA, RA]) admit(ctx context.Context) (int, error) {
	for {
		p.mu.Lock()
		if n := len(p.available); n > 0 {
			idx := p.available[n-1]
			p.available = p.available[:n-1]
			p.mu.Unlock()
			return idx, nil
		}
		waker := make(chan struct{})
		p.wakers = append(p.wakers, waker)
		p.mu.Unlock()

		select {
		case <-waker:
			// retry: another goroutine may have raced us for the slot.
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (p *SimplePool[R, CA, RA]) release(idx int) {
	p.mu.Lock()
	p.available = append(p.available, idx)
	var waker chan struct{}
	if n := len(p.wakers); n > 0 {
		waker = p.wakers[n-1]
		p.wakers = p.wakers[:n-1]
	}
	p.mu.Unlock()

	if waker != nil {
		close(waker)
	}
}

// Deref returns the underlying resource.
func (g *Guard[R, CA, RA]) Deref() *R {
	return g.slot.res
}

// Release returns the guard's slot to the pool and wakes one parked
// waiter, if any.
func (g *Guard[R, CA, RA]) Release() {
	g.slot.mu.Unlock()
	g.pool.release(g.idx)
}
