// Package batch coalesces bursts of overlapping work. Requests sharing a
// category within a short window form one batch; within a batch, requests
// sharing a key run exactly one fetcher and every duplicate caller settles
// with that fetcher's outcome. Batches dispatch with bounded concurrency,
// and a fetcher's failure never affects its siblings.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"docintel/internal/logger"
)

// ErrDiscarded settles requests dropped by ClearQueue before dispatch.
// Cleared work is discarded, not cancelled: a fetcher already in flight runs
// to completion for the callers it already has.
var ErrDiscarded = errors.New("request discarded before dispatch")

const (
	// DefaultWindow is how long a category collects requests before dispatch.
	DefaultWindow = 50 * time.Millisecond

	// DefaultMaxConcurrent bounds fetchers in flight across all batches.
	DefaultMaxConcurrent = 3
)

// FetchFunc produces the value for one key. Closures carry their own
// context; duplicates of the key never run theirs.
type FetchFunc[T any] func() (T, error)

// Options configures a Batcher. Zero values fall back to the defaults.
type Options struct {
	Window        time.Duration
	MaxConcurrent int64
}

type outcome[T any] struct {
	value T
	err   error
}

type request[T any] struct {
	key   string
	fetch FetchFunc[T]
	done  chan outcome[T]
}

// Batcher deduplicates and rate-bounds keyed fetches. Safe for concurrent
// use; the queue map and timers are guarded by a mutex.
type Batcher[T any] struct {
	window time.Duration
	sem    *semaphore.Weighted
	log    zerolog.Logger

	mu     sync.Mutex
	queues map[string][]*request[T]
	timers map[string]*time.Timer
}

// New creates a Batcher.
func New[T any](opts Options) *Batcher[T] {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Batcher[T]{
		window: opts.Window,
		sem:    semaphore.NewWeighted(opts.MaxConcurrent),
		log:    logger.WithComponent("batcher"),
		queues: make(map[string][]*request[T]),
		timers: make(map[string]*time.Timer),
	}
}

// Do enqueues a fetch under (category, key) and blocks until it settles.
// Callers sharing the key within one window receive the identical value or
// the identical error. A cancelled caller context abandons the wait, not the
// fetch.
func (b *Batcher[T]) Do(ctx context.Context, category, key string, fetch FetchFunc[T]) (T, error) {
	req := &request[T]{
		key:   key,
		fetch: fetch,
		done:  make(chan outcome[T], 1),
	}

	b.mu.Lock()
	b.queues[category] = append(b.queues[category], req)
	if _, pending := b.timers[category]; !pending {
		b.timers[category] = time.AfterFunc(b.window, func() {
			b.dispatch(category)
		})
	}
	b.mu.Unlock()

	select {
	case out := <-req.done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ClearQueue discards pending, not-yet-dispatched work for the given
// categories, or for all categories when none are given. Discarded callers
// settle with ErrDiscarded.
func (b *Batcher[T]) ClearQueue(categories ...string) {
	b.mu.Lock()
	if len(categories) == 0 {
		categories = make([]string, 0, len(b.queues))
		for category := range b.queues {
			categories = append(categories, category)
		}
	}

	var discarded []*request[T]
	for _, category := range categories {
		discarded = append(discarded, b.queues[category]...)
		delete(b.queues, category)
		if timer, ok := b.timers[category]; ok {
			timer.Stop()
			delete(b.timers, category)
		}
	}
	b.mu.Unlock()

	if len(discarded) > 0 {
		b.log.Debug().Int("discarded", len(discarded)).Msg("Cleared pending batch requests")
	}
	var zero T
	for _, req := range discarded {
		req.done <- outcome[T]{value: zero, err: ErrDiscarded}
	}
}

// dispatch drains one category's queue, groups requests by key and runs one
// fetcher per key under the concurrency bound.
func (b *Batcher[T]) dispatch(category string) {
	b.mu.Lock()
	pending := b.queues[category]
	delete(b.queues, category)
	delete(b.timers, category)
	b.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	groups := make(map[string][]*request[T])
	var order []string
	for _, req := range pending {
		if _, seen := groups[req.key]; !seen {
			order = append(order, req.key)
		}
		groups[req.key] = append(groups[req.key], req)
	}

	b.log.Debug().
		Str("category", category).
		Int("requests", len(pending)).
		Int("unique_keys", len(order)).
		Msg("Dispatching batch")

	for _, key := range order {
		waiters := groups[key]
		// Only the first fetcher registered for the key executes.
		fetch := waiters[0].fetch
		go func(waiters []*request[T], fetch FetchFunc[T]) {
			_ = b.sem.Acquire(context.Background(), 1)
			value, err := fetch()
			b.sem.Release(1)
			for _, w := range waiters {
				w.done <- outcome[T]{value: value, err: err}
			}
		}(waiters, fetch)
	}
}
