// Package poll waits for external conditions by re-checking them at a fixed
// interval. There is no event notification from the vehicle, so every phase
// wait in the flight controller is a poll.
package poll

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrTimeout = errors.New("wait timed out")

// Clock abstracts time so waits can be driven by tests and simulations.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock is backed by the time package.
var RealClock Clock = realClock{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CheckFn samples the condition once. Errors end the wait and are returned
// unmodified.
type CheckFn func() (bool, error)

// Waiter re-checks a condition every Interval. A zero Timeout waits forever.
type Waiter struct {
	Clock    Clock
	Interval time.Duration
	Timeout  time.Duration
}

func (w Waiter) clock() Clock {
	if w.Clock == nil {
		return RealClock
	}
	return w.Clock
}

// Until calls check until it reports true. The first check happens
// immediately; subsequent checks are separated by Interval.
func (w Waiter) Until(ctx context.Context, check CheckFn) error {
	clock := w.clock()
	start := clock.Now()
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if w.Timeout > 0 && clock.Now().Sub(start) >= w.Timeout {
			return errors.Wrapf(ErrTimeout, "condition not met after %v", w.Timeout)
		}
		if err := clock.Sleep(ctx, w.Interval); err != nil {
			return err
		}
	}
}

// Sleep pauses for d on the waiter's clock.
func (w Waiter) Sleep(ctx context.Context, d time.Duration) error {
	return w.clock().Sleep(ctx, d)
}
