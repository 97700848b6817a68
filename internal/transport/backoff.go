package transport

import (
	"math"
	"math/rand"
	"time"
)

// BackoffType selects the reconnect delay schedule.
type BackoffType int

const (
	BackoffNone BackoffType = iota
	BackoffFixed
	BackoffExp
	BackoffExpJitter
)

// RetryPolicy bounds automatic reconnection after a channel drop.
type RetryPolicy struct {
	Type        BackoffType
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
	MaxAttempts uint32
}

// DefaultRetryPolicy: three attempts, exponential from 500ms capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Type: BackoffExp, Base: 500 * time.Millisecond, Cap: 10 * time.Second, Factor: 2.0, MaxAttempts: 3}
}

// Delay computes the wait before the given attempt (first attempt is 1).
func (p RetryPolicy) Delay(attempt uint32) time.Duration {
	if attempt == 0 {
		attempt = 1
	}
	switch p.Type {
	case BackoffNone:
		return 0
	case BackoffFixed:
		if p.Cap > 0 && p.Base > p.Cap {
			return p.Cap
		}
		return p.Base
	case BackoffExp, BackoffExpJitter:
		base := p.Base
		if base <= 0 {
			base = 500 * time.Millisecond
		}
		factor := p.Factor
		if factor <= 0 {
			factor = 2.0
		}
		d := time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
		if p.Cap > 0 && d > p.Cap {
			d = p.Cap
		}
		if p.Type == BackoffExpJitter && d > 0 {
			d = time.Duration(rand.Int63n(int64(d)))
		}
		return d
	default:
		return p.Base
	}
}
