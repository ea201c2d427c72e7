package priceseries

import "context"

// FetchPool bounds the number of concurrent per-symbol fetches (spec.md
// §5: "a bounded worker pool (default 16) to respect vendor rate
// limits"). A simple buffered-channel semaphore, grounded on the
// teacher's goroutine-fan-out style (internal/modules/evaluation/advanced.go)
// generalized with a bound; the call site returns errors itself, without
// errgroup.
type FetchPool struct {
	sem chan struct{}
}

// DefaultPoolSize is spec.md §5's default bounded worker-pool size.
const DefaultPoolSize = 16

// NewFetchPool creates a pool allowing at most size concurrent in-flight
// fetches. size <= 0 falls back to DefaultPoolSize.
func NewFetchPool(size int) *FetchPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &FetchPool{sem: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (p *FetchPool) Acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired via Acquire.
func (p *FetchPool) Release() { <-p.sem }
