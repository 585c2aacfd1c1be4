package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

// RetryPolicy decides whether a failed call is retried. attempt counts the
// retries already made for the call, starting at 0.
type RetryPolicy func(attempt int, err error) (time.Duration, bool)

// ExponentialBackoff retries up to maxRetries times, waiting baseDelay*2^attempt.
// Validation and not-found errors and cancellations are returned immediately.
func ExponentialBackoff(maxRetries int, baseDelay time.Duration) RetryPolicy {
	return func(attempt int, err error) (time.Duration, bool) {
		if attempt >= maxRetries {
			return 0, false
		}
		switch models.KindOf(err) {
		case models.KindValidation, models.KindNotFound:
			return 0, false
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, false
		}
		return baseDelay * time.Duration(1<<attempt), true
	}
}

type RateLimiterConfig struct {
	MaxConcurrent  int
	MinInterval    time.Duration
	Reservoir      int
	RefillInterval time.Duration
	RetryPolicy    RetryPolicy
}

// RateLimitedClient is the single throttle for calls to one remote API.
type RateLimitedClient struct {
	name           string
	slots          chan struct{}
	minInterval    time.Duration
	reservoirSize  int
	refillInterval time.Duration
	retryPolicy    RetryPolicy

	dispatchMutex sync.Mutex
	lastDispatch  time.Time
	tokens        int
	nextRefill    time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRateLimitedClient(name string, cfg RateLimiterConfig) *RateLimitedClient {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = ExponentialBackoff(0, 0)
	}
	rlc := &RateLimitedClient{
		name:           name,
		slots:          make(chan struct{}, cfg.MaxConcurrent),
		minInterval:    cfg.MinInterval,
		reservoirSize:  cfg.Reservoir,
		refillInterval: cfg.RefillInterval,
		retryPolicy:    cfg.RetryPolicy,
		now:            time.Now,
		sleep:          sleepContext,
	}
	rlc.resetReservoir()
	return rlc
}

func (rlc *RateLimitedClient) resetReservoir() {
	rlc.tokens = rlc.reservoirSize
	rlc.nextRefill = rlc.now().Add(rlc.refillInterval)
}

func (rlc *RateLimitedClient) reservoirEnabled() bool {
	return rlc.reservoirSize > 0 && rlc.refillInterval > 0
}

// Schedule runs task through the limiter and returns its result.
func Schedule[T any](ctx context.Context, rlc *RateLimitedClient, task func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := rlc.Do(ctx, func(ctx context.Context) error {
		value, err := task(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}

// Do runs task once a concurrency slot, a reservoir token and the dispatch
// spacing allow it, retrying failures as the retry policy dictates.
func (rlc *RateLimitedClient) Do(ctx context.Context, task func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := rlc.acquire(ctx); err != nil {
			return err
		}
		err := rlc.run(ctx, task)

		if err == nil {
			return nil
		}
		delay, retry := rlc.retryPolicy(attempt, err)
		if !retry || ctx.Err() != nil {
			return err
		}
		helpers.LimiterRetries.WithLabelValues(rlc.name).Inc()
		helpers.Logger.Debugln(fmt.Sprintf("%s call failed, retry %d in %s: %v", rlc.name, attempt+1, delay, err))
		if sleepErr := rlc.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

// run executes task in an acquired slot. The slot is released even when task
// panics; the panic still reaches the caller.
func (rlc *RateLimitedClient) run(ctx context.Context, task func(ctx context.Context) error) error {
	helpers.LimiterInFlight.WithLabelValues(rlc.name).Inc()
	defer func() {
		helpers.LimiterInFlight.WithLabelValues(rlc.name).Dec()
		<-rlc.slots
	}()
	return task(ctx)
}

func (rlc *RateLimitedClient) acquire(ctx context.Context) error {
	select {
	case rlc.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := rlc.waitTurn(ctx); err != nil {
		<-rlc.slots
		return err
	}
	return nil
}

// waitTurn blocks until a reservoir token is available and minInterval has
// passed since the previous dispatch, then records the dispatch.
func (rlc *RateLimitedClient) waitTurn(ctx context.Context) error {
	rlc.dispatchMutex.Lock()
	defer rlc.dispatchMutex.Unlock()

	for {
		now := rlc.now()
		if rlc.reservoirEnabled() {
			for !now.Before(rlc.nextRefill) {
				rlc.tokens = rlc.reservoirSize
				rlc.nextRefill = rlc.nextRefill.Add(rlc.refillInterval)
			}
			if rlc.tokens == 0 {
				if err := rlc.sleep(ctx, rlc.nextRefill.Sub(now)); err != nil {
					return err
				}
				continue
			}
		}
		if rlc.minInterval > 0 && !rlc.lastDispatch.IsZero() {
			if wait := rlc.lastDispatch.Add(rlc.minInterval).Sub(now); wait > 0 {
				if err := rlc.sleep(ctx, wait); err != nil {
					return err
				}
				continue
			}
		}
		if rlc.reservoirEnabled() {
			rlc.tokens--
		}
		rlc.lastDispatch = now
		return nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
