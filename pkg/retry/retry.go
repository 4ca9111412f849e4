// Package retry runs an operation until it succeeds or its attempt budget is
// spent. Browser readiness polling and best-effort HTTP calls share it.
//
// Two strategies are supported:
//   - Constant: the same delay between every attempt (readiness polling)
//   - Exponential: delay doubles each attempt (HTTP collaborators)
//
// Usage:
//
//	err := retry.Do(ctx, retry.Poll(200, duration.ReadinessPoll), func(ctx context.Context) error {
//	    return dial(ctx)
//	})
//	if errors.Is(err, retry.ErrExhausted) { ... }
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrExhausted is wrapped into the error Do returns when every attempt failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Strategy defines the backoff algorithm.
type Strategy int

const (
	// Constant uses the same delay between every attempt.
	Constant Strategy = iota
	// Exponential doubles the delay each attempt: initDelay * 2^attempt.
	Exponential
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // Total attempts (including the first). 0 means no-op.
	InitDelay   time.Duration // Base delay before first retry.
	MaxDelay    time.Duration // Upper bound on any single delay. 0 means no bound.
	Strategy    Strategy
	Jitter      bool // Add ±25% random jitter to each delay.
}

// Poll returns a constant-interval config with the given attempt budget.
func Poll(attempts int, interval time.Duration) Config {
	return Config{
		MaxAttempts: attempts,
		InitDelay:   interval,
		Strategy:    Constant,
	}
}

// Backoff returns an exponential config with jitter.
func Backoff(attempts int, initDelay, maxDelay time.Duration) Config {
	return Config{
		MaxAttempts: attempts,
		InitDelay:   initDelay,
		MaxDelay:    maxDelay,
		Strategy:    Exponential,
		Jitter:      true,
	}
}

// StopError wraps an error to signal that retrying should stop immediately.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further retries.
func Stop(err error) error {
	return &StopError{Err: err}
}

type sleeper interface {
	sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn up to cfg.MaxAttempts times, sleeping between failures.
// It returns nil on the first success. When every attempt fails the
// returned error wraps both ErrExhausted and the last failure. A StopError
// ends the loop and its wrapped error is returned as is. Context
// cancellation returns ctx.Err().
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	return doWithSleeper(ctx, cfg, fn, realSleeper{})
}

func doWithSleeper(ctx context.Context, cfg Config, fn func(ctx context.Context) error, s sleeper) error {
	if cfg.MaxAttempts <= 0 {
		return nil
	}

	var lastErr error
	for attempt := range cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}

		if attempt < cfg.MaxAttempts-1 {
			if err := s.sleep(ctx, CalcDelay(cfg, attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxAttempts, lastErr)
}

// CalcDelay computes the sleep duration after a given attempt (0-indexed).
func CalcDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.InitDelay
	if cfg.Strategy == Exponential {
		f := float64(cfg.InitDelay) * math.Pow(2, float64(attempt))
		if f >= math.MaxInt64 {
			delay = time.Duration(math.MaxInt64)
		} else {
			delay = time.Duration(f)
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay > 0 {
		if quarter := int64(delay) / 4; quarter > 0 {
			j := time.Duration(rand.Int64N(quarter))
			if rand.IntN(2) == 0 {
				delay += j
			} else {
				delay -= j
			}
		}
	}
	return delay
}
