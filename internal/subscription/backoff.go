package subscription

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const backoffJitter = 0.2

// reconnectBackoff grows the reconnect delay exponentially from initial up
// to max. It never gives up and never returns a zero delay.
type reconnectBackoff struct {
	b       *backoff.ExponentialBackOff
	initial time.Duration
	max     time.Duration
}

func newReconnectBackoff(initial, maxDelay time.Duration) *reconnectBackoff {
	if initial <= 0 {
		initial = DefaultReconnectDelay
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = backoffJitter
	b.MaxElapsedTime = 0
	b.Reset()
	return &reconnectBackoff{b: b, initial: initial, max: maxDelay}
}

// Next returns the delay before the next attempt.
func (r *reconnectBackoff) Next() time.Duration {
	d := r.b.NextBackOff()
	switch {
	case d == backoff.Stop, d <= 0:
		return r.initial
	case d > r.max:
		return r.max
	}
	return d
}

// Reset starts the sequence over after a successful connect.
func (r *reconnectBackoff) Reset() { r.b.Reset() }
