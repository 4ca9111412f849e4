// Package deadline runs a function under a preemptive time limit.
//
// context.WithTimeout only helps when the callee honours its context. A
// protocol call blocked on a browser that never answers does not, so Run
// executes fn on its own goroutine and returns as soon as the limit is hit.
// fn's context is cancelled at that point, and fn is expected to wind down
// on its own afterwards.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExpired is returned by Run when the limit elapses before fn returns.
var ErrExpired = errors.New("deadline: expired")

// Run calls fn and waits at most d for it to return. It returns fn's error,
// an error wrapping ErrExpired when d elapses first, or ctx.Err() when ctx
// is done first. A non-positive d waits for ctx only.
func Run(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so an abandoned fn can still deliver its result and exit.
	done := make(chan error, 1)
	go func() {
		done <- fn(runCtx)
	}()

	var expired <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		expired = t.C
	}

	select {
	case err := <-done:
		return err
	case <-expired:
		return fmt.Errorf("%w after %s", ErrExpired, d)
	case <-ctx.Done():
		return ctx.Err()
	}
}
