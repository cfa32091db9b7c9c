package retry

import (
	"context"
	"fmt"
	"iter"
	"math"
	"time"
)

// Policy describes a bounded exponential backoff with escalating timeouts.
type Policy struct {
	// Base is the sleep after the first failed attempt.
	Base time.Duration

	// Factor multiplies the sleep after every failed attempt.
	Factor float64

	// MaxAttempts bounds the number of attempts. Values below 1 yield no attempts.
	MaxAttempts int

	// ConnectTimeout and ReadTimeout apply to attempt 0.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// TimeoutStep is added to both timeouts for every attempt index.
	TimeoutStep time.Duration
}

// Attempt is the per-iteration state of a retry loop.
type Attempt struct {
	Index          int
	Sleep          time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// Last is set on the final attempt the policy permits.
	Last bool
}

// Delay returns the sleep that follows failed attempt n: Base * Factor^n.
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	return time.Duration(float64(p.Base) * math.Pow(p.Factor, float64(n)))
}

// At returns the Attempt for index n without iterating.
func (p Policy) At(n int) Attempt {
	step := time.Duration(n) * p.TimeoutStep
	return Attempt{
		Index:          n,
		Sleep:          p.Delay(n),
		ConnectTimeout: p.ConnectTimeout + step,
		ReadTimeout:    p.ReadTimeout + step,
		Last:           n >= p.MaxAttempts-1,
	}
}

// Attempts yields MaxAttempts attempts in order. The sequence is lazy and
// can be ranged over any number of times; every range starts at index 0.
func (p Policy) Attempts() iter.Seq[Attempt] {
	return func(yield func(Attempt) bool) {
		for n := 0; n < p.MaxAttempts; n++ {
			if !yield(p.At(n)) {
				return
			}
		}
	}
}

// Validate checks that p describes a usable loop.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Base < 0 {
		return fmt.Errorf("retry: base sleep must not be negative")
	}
	if p.Factor < 1 {
		return fmt.Errorf("retry: growth factor must be at least 1, got %v", p.Factor)
	}
	return nil
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc. It returns ctx.Err() if ctx is cancelled
// before d elapses.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
