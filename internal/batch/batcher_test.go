package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoReturnsFetchedValue(t *testing.T) {
	b := New[string](Options{Window: time.Millisecond})

	got, err := b.Do(context.Background(), "cat", "key", func() (string, error) {
		return "value", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestDoDeduplicatesSameKey(t *testing.T) {
	b := New[int](Options{Window: 20 * time.Millisecond})

	var fetchCount int64
	var wg sync.WaitGroup
	results := make([]int, 5)
	errs := make([]error, 5)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = b.Do(context.Background(), "cat", "shared", func() (int, error) {
				return int(atomic.AddInt64(&fetchCount, 1)), nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&fetchCount), "exactly one fetcher runs per key")
	for i := 0; i < 5; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, results[i], "every caller gets the shared value")
	}
}

func TestDoDistinctKeysRunSeparately(t *testing.T) {
	b := New[string](Options{Window: 20 * time.Millisecond})

	var wg sync.WaitGroup
	got := make([]string, 2)
	for i, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			got[i], _ = b.Do(context.Background(), "cat", key, func() (string, error) {
				return key, nil
			})
		}(i, key)
	}
	wg.Wait()

	assert.Equal(t, "a", got[0])
	assert.Equal(t, "b", got[1])
}

func TestDoFailureIsolatedPerKey(t *testing.T) {
	b := New[string](Options{Window: 20 * time.Millisecond})
	boom := errors.New("boom")

	var wg sync.WaitGroup
	var okValue string
	var okErr, badErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		okValue, okErr = b.Do(context.Background(), "cat", "good", func() (string, error) {
			return "fine", nil
		})
	}()
	go func() {
		defer wg.Done()
		_, badErr = b.Do(context.Background(), "cat", "bad", func() (string, error) {
			return "", boom
		})
	}()
	wg.Wait()

	require.NoError(t, okErr)
	assert.Equal(t, "fine", okValue)
	assert.ErrorIs(t, badErr, boom)
}

func TestDoSharedErrorReachesAllWaiters(t *testing.T) {
	b := New[string](Options{Window: 20 * time.Millisecond})
	boom := errors.New("boom")

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.Do(context.Background(), "cat", "shared", func() (string, error) {
				return "", boom
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, errs[i], boom)
	}
}

func TestClearQueueDiscardsPendingRequests(t *testing.T) {
	// A long window keeps the batch undispatched while we clear it.
	b := New[string](Options{Window: time.Minute})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.Do(context.Background(), "cat", "key", func() (string, error) {
				return "never runs", nil
			})
		}(i)
	}

	// Let both requests enqueue before clearing.
	time.Sleep(50 * time.Millisecond)
	b.ClearQueue("cat")
	wg.Wait()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, errs[i], ErrDiscarded)
	}
}

func TestClearQueueOnlyNamedCategory(t *testing.T) {
	b := New[string](Options{Window: 80 * time.Millisecond})

	var wg sync.WaitGroup
	var keptValue string
	var keptErr, clearedErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		keptValue, keptErr = b.Do(context.Background(), "kept", "k", func() (string, error) {
			return "survived", nil
		})
	}()
	go func() {
		defer wg.Done()
		_, clearedErr = b.Do(context.Background(), "cleared", "k", func() (string, error) {
			return "", nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	b.ClearQueue("cleared")
	wg.Wait()

	require.NoError(t, keptErr)
	assert.Equal(t, "survived", keptValue)
	assert.ErrorIs(t, clearedErr, ErrDiscarded)
}

func TestDoRespectsCallerContext(t *testing.T) {
	b := New[string](Options{Window: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Do(ctx, "cat", "key", func() (string, error) {
		return "", nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoBoundsConcurrency(t *testing.T) {
	b := New[struct{}](Options{Window: 10 * time.Millisecond, MaxConcurrent: 2})

	var inFlight, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			_, _ = b.Do(context.Background(), "cat", key, func() (struct{}, error) {
				current := atomic.AddInt64(&inFlight, 1)
				for {
					observed := atomic.LoadInt64(&peak)
					if current <= observed || atomic.CompareAndSwapInt64(&peak, observed, current) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return struct{}{}, nil
			})
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}
