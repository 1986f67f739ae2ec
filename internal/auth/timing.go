package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds the failure delay applied to rejected admin requests
type TimingConfig struct {
	BaseDelayMs   int // Base delay in milliseconds
	RandomDelayMs int // Random jitter range in milliseconds
}

// TimingDelay pads failed secret checks to a base duration plus random
// jitter, so a rejection's latency says nothing about how close a guess was
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandIntn returns a secure random number in [0, max)
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}

// Target returns the padded duration for one failure
func (td *TimingDelay) Target() time.Duration {
	target := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if jitter, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			target += time.Duration(jitter) * time.Millisecond
		}
	}
	return target
}

// WaitFrom sleeps until at least Target has elapsed since start. It returns
// early if ctx is cancelled.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	remaining := td.Target() - time.Since(start)
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
