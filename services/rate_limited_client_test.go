package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

type fakeClock struct {
	mutex  sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	f.mutex.Lock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	f.mutex.Unlock()
	return ctx.Err()
}

func (f *fakeClock) Sleeps() []time.Duration {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

func newTestLimiter(cfg RateLimiterConfig, clock *fakeClock) *RateLimitedClient {
	rlc := NewRateLimitedClient("test", cfg)
	rlc.now = clock.Now
	rlc.sleep = clock.Sleep
	rlc.resetReservoir()
	return rlc
}

func TestExponentialBackoff(t *testing.T) {
	policy := ExponentialBackoff(3, 100*time.Millisecond)
	cause := errors.New("503")

	for attempt, expected := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond} {
		delay, ok := policy(attempt, cause)
		assert.True(t, ok)
		assert.Equal(t, expected, delay)
	}
	_, ok := policy(3, cause)
	assert.False(t, ok)

	_, ok = policy(0, &models.ValidationError{Field: "symbol", Reason: "is required"})
	assert.False(t, ok)
	_, ok = policy(0, context.Canceled)
	assert.False(t, ok)
}

func TestDispatchesAreSpacedByMinInterval(t *testing.T) {
	clock := newFakeClock()
	rlc := newTestLimiter(RateLimiterConfig{MaxConcurrent: 1, MinInterval: 100 * time.Millisecond}, clock)

	var mutex sync.Mutex
	var dispatched []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := rlc.Do(context.Background(), func(ctx context.Context) error {
				mutex.Lock()
				dispatched = append(dispatched, clock.Now())
				mutex.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, dispatched, 6)
	sort.Slice(dispatched, func(i, j int) bool { return dispatched[i].Before(dispatched[j]) })
	for i := 1; i < len(dispatched); i++ {
		assert.GreaterOrEqual(t, dispatched[i].Sub(dispatched[i-1]), 100*time.Millisecond)
	}
}

func TestNoMoreThanMaxConcurrentInFlight(t *testing.T) {
	rlc := NewRateLimitedClient("test", RateLimiterConfig{MaxConcurrent: 3})

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rlc.Do(context.Background(), func(ctx context.Context) error {
				current := atomic.AddInt32(&inFlight, 1)
				for {
					observed := atomic.LoadInt32(&maxInFlight)
					if current <= observed || atomic.CompareAndSwapInt32(&maxInFlight, observed, current) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(3))
	assert.Greater(t, atomic.LoadInt32(&maxInFlight), int32(0))
}

func TestReservoirRefillsOnFixedWindow(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	rlc := newTestLimiter(RateLimiterConfig{MaxConcurrent: 1, Reservoir: 2, RefillInterval: time.Minute}, clock)

	var dispatched []time.Duration
	for i := 0; i < 5; i++ {
		require.NoError(t, rlc.Do(context.Background(), func(ctx context.Context) error {
			dispatched = append(dispatched, clock.Now().Sub(start))
			return nil
		}))
	}

	assert.Equal(t, []time.Duration{0, 0, time.Minute, time.Minute, 2 * time.Minute}, dispatched)
}

func TestRetriesWithBackoffUntilSuccess(t *testing.T) {
	clock := newFakeClock()
	rlc := newTestLimiter(RateLimiterConfig{
		MaxConcurrent: 1,
		RetryPolicy:   ExponentialBackoff(3, 100*time.Millisecond),
	}, clock)

	calls := 0
	result, err := Schedule(context.Background(), rlc, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.Sleeps())
}

func TestRetriesExhaustedReturnsError(t *testing.T) {
	clock := newFakeClock()
	rlc := newTestLimiter(RateLimiterConfig{
		MaxConcurrent: 1,
		RetryPolicy:   ExponentialBackoff(2, 50*time.Millisecond),
	}, clock)

	cause := errors.New("503")
	calls := 0
	err := rlc.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, clock.Sleeps())
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	clock := newFakeClock()
	rlc := newTestLimiter(RateLimiterConfig{MaxConcurrent: 1, RetryPolicy: ExponentialBackoff(5, time.Second)}, clock)

	calls := 0
	err := rlc.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &models.ValidationError{Field: "quantity", Reason: "must be positive"}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Sleeps())
}

func TestDoReturnsWhenContextCanceledWaitingForSlot(t *testing.T) {
	rlc := NewRateLimitedClient("test", RateLimiterConfig{MaxConcurrent: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = rlc.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rlc.Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestPanickingTaskReleasesItsSlot(t *testing.T) {
	rlc := NewRateLimitedClient("test", RateLimiterConfig{MaxConcurrent: 1})

	for i := 0; i < 3; i++ {
		assert.Panics(t, func() {
			_ = rlc.Do(context.Background(), func(ctx context.Context) error {
				panic("exchange client blew up")
			})
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	value, err := Schedule(ctx, rlc, func(ctx context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.Empty(t, rlc.slots)
}
