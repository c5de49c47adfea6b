// Package limiter implements the per-endpoint concurrency limiter: a
// slot pool keyed by endpoint URL that bounds concurrent in-flight
// requests to each data centre. The pool is process-wide and survives
// across requests; keys are created lazily on first acquire.
package limiter

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/eidaws/federator/internal/ferr"
	"github.com/eidaws/federator/internal/metrics"
)

// Slot is a scoped acquisition that must be released exactly once.
type Slot struct {
	sem *semaphore.Weighted
	url string
}

func (s *Slot) Release() {
	s.sem.Release(1)
	metrics.SlotHeld.WithLabelValues(s.url).Dec()
}

// Pool is the process-wide, URL-keyed slot pool. Keys are
// created lazily on first Acquire.
type Pool struct {
	mu       sync.Mutex
	sems     map[string]*semaphore.Weighted
	store    CapacityStore
	fallback int
}

// NewPool builds a pool with one static fallback capacity, used for any
// URL the CapacityStore has no discovered value for. The same fallback
// applies to every endpoint; there is no separate default per service.
func NewPool(store CapacityStore, fallbackCapacity int) *Pool {
	return &Pool{sems: make(map[string]*semaphore.Weighted), store: store, fallback: fallbackCapacity}
}

// Init records a routing-service-discovered capacity for url, taking
// precedence over the static fallback on next Acquire for a URL not yet
// seen. Safe to call repeatedly; each call writes the value to the store,
// but it no longer changes this pool's capacity for a URL once a
// semaphore has been created for it (capacity is fixed at creation).
func (p *Pool) Init(url string, discoveredCapacity int) {
	p.store.Set(url, discoveredCapacity)
}

func (p *Pool) semFor(url string) *semaphore.Weighted {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sem, ok := p.sems[url]; ok {
		return sem
	}
	cap := p.fallback
	if c, ok := p.store.Get(url); ok {
		cap = c
	}
	if cap <= 0 {
		cap = 1
	}
	sem := semaphore.NewWeighted(int64(cap))
	p.sems[url] = sem
	metrics.SlotCapacity.WithLabelValues(url).Set(float64(cap))
	return sem
}

// Acquire waits until a slot is free for url or ctx's deadline elapses,
// polling cooperatively via the semaphore's own waiter queue.
func (p *Pool) Acquire(ctx context.Context, url string) (*Slot, error) {
	sem := p.semFor(url)
	if err := sem.Acquire(ctx, 1); err != nil {
		metrics.SlotTimeoutsTotal.WithLabelValues(url).Inc()
		return nil, &ferr.SlotTimeout{URL: url}
	}
	metrics.SlotHeld.WithLabelValues(url).Inc()
	return &Slot{sem: sem, url: url}, nil
}
