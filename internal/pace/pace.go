// Package pace draws the randomized pauses between sends and contact adds.
package pace

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var ErrInvalidDelay = errors.New("invalid delay range")

// SleepFunc pauses for d or until ctx is done. Orchestrators take one so
// tests can record delays instead of waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
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

// ValidateDelays requires both bounds to be finite, positive and ordered.
func ValidateDelays(min, max float64) error {
	if !finite(min) || !finite(max) {
		return fmt.Errorf("%w: delays must be finite numbers (min=%g, max=%g)", ErrInvalidDelay, min, max)
	}
	if min <= 0 || max <= 0 {
		return fmt.Errorf("%w: delays must be positive (min=%g, max=%g)", ErrInvalidDelay, min, max)
	}
	if min > max {
		return fmt.Errorf("%w: min delay %g is greater than max delay %g", ErrInvalidDelay, min, max)
	}
	return nil
}

// Uniform draws a duration uniformly from [min, max] seconds. A nil rng uses
// the global source.
func Uniform(rng *rand.Rand, min, max float64) time.Duration {
	if max < min {
		min, max = max, min
	}
	var f float64
	if rng != nil {
		f = rng.Float64()
	} else {
		f = rand.Float64()
	}
	secs := min + f*(max-min)
	d := time.Duration(secs * float64(time.Second))
	// Float rounding must not push the draw outside the range.
	lo, hi := seconds(min), seconds(max)
	if d < lo {
		d = lo
	}
	if d > hi {
		d = hi
	}
	return d
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
