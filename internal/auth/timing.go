package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for failed-login response padding
type TimingConfig struct {
	MinFailureDuration time.Duration // failures never answer faster than this
	Jitter             time.Duration // random extra delay, [0, Jitter)
}

// TimingDelay pads failed logins so that failures rejected before the
// verification authority is contacted take about as long as those rejected after.
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandDuration returns a secure random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(randomBytes) % uint64(max))
}

// WaitFrom sleeps until at least MinFailureDuration (plus jitter) has passed
// since start. Successful attempts return immediately. It returns early if ctx ends.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time, success bool) {
	if success || td == nil {
		return
	}

	target := td.config.MinFailureDuration + cryptoRandDuration(td.config.Jitter)
	remaining := target - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
