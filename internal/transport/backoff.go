package transport

import (
	"math/rand"
	"time"
)

// Backoff computes capped exponential reconnect delays with jitter so a
// fleet of gateways does not hammer a recovering device server in
// lockstep.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	attempt int
}

// Next returns the delay before the next reconnect attempt and advances
// the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.Initial << b.attempt
	if d <= 0 || d > b.Max {
		d = b.Max
	} else {
		b.attempt++
	}
	// Up to 25% jitter.
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// Reset restarts the sequence after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}
