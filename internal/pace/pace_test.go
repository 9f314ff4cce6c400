package pace

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDelays(t *testing.T) {
	tests := []struct {
		name     string
		min, max float64
		wantErr  bool
	}{
		{"equal", 1, 1, false},
		{"ordered", 7, 16, false},
		{"fractional", 0.5, 0.75, false},
		{"inverted", 5, 2, true},
		{"zero min", 0, 2, true},
		{"negative max", 1, -1, true},
		{"nan both", math.NaN(), math.NaN(), true},
		{"nan max", 1, math.NaN(), true},
		{"infinite max", 1, math.Inf(1), true},
		{"infinite min", math.Inf(1), math.Inf(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDelays(tt.min, tt.max)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDelay)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUniformStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 5000; i++ {
		d := Uniform(rng, 2, 4)
		require.GreaterOrEqual(t, d, 2*time.Second)
		require.LessOrEqual(t, d, 4*time.Second)
	}
}

func TestUniformDegenerateRange(t *testing.T) {
	assert.Equal(t, time.Second, Uniform(rand.New(rand.NewPCG(3, 4)), 1, 1))
	assert.Equal(t, time.Second, Uniform(nil, 1, 1))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepZero(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
}
