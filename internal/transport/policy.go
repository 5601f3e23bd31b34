package transport

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Ensure exponentialPolicy implements backoff.BackOff
var _ backoff.BackOff = (*exponentialPolicy)(nil)

// exponentialPolicy yields min(base * 2^i, cap) for the i-th retry, without
// jitter, so retry timing is predictable
type exponentialPolicy struct {
	base    time.Duration
	cap     time.Duration
	attempt int
}

func newExponentialPolicy(base, cap time.Duration) *exponentialPolicy {
	return &exponentialPolicy{base: base, cap: cap}
}

// NextBackOff returns the delay before the next retry
func (p *exponentialPolicy) NextBackOff() time.Duration {
	d := Delay(p.base, p.cap, p.attempt)
	p.attempt++
	return d
}

// Reset restarts the sequence
func (p *exponentialPolicy) Reset() {
	p.attempt = 0
}

// Delay returns min(base * 2^i, cap)
func Delay(base, cap time.Duration, i int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for n := 0; n < i; n++ {
		if d > cap/2 {
			return cap
		}
		d *= 2
	}
	if d > cap {
		return cap
	}
	return d
}
