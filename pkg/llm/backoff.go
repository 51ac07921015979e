package llm

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultBackoffBase   = 1 * time.Second
	DefaultBackoffJitter = 1 * time.Second
	DefaultBackoffCap    = 10 * time.Second
)

// Backoff computes how long to wait before retrying.
type Backoff struct {
	Base   time.Duration
	Jitter time.Duration
	Cap    time.Duration

	// rand returns a value in [0, n). Defaults to math/rand/v2.
	rand func(n int64) int64
}

// DefaultBackoff returns the 1s base, 1s jitter, 10s cap schedule.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Base:   DefaultBackoffBase,
		Jitter: DefaultBackoffJitter,
		Cap:    DefaultBackoffCap,
	}
}

// Delay returns min(Base*2^attempt + U[0, Jitter), Cap) for a zero-based
// attempt. A zero Cap disables capping.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Cap > 0 && d >= b.Cap {
			return b.Cap
		}
	}

	if b.Jitter > 0 {
		d += time.Duration(b.randN(int64(b.Jitter)))
	}
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}

func (b *Backoff) randN(n int64) int64 {
	if b.rand != nil {
		return b.rand(n)
	}
	return rand.Int64N(n)
}
