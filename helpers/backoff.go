package helpers

import (
	"sync/atomic"
	"time"
)

// Limited exponential backoff for retry delays.
// Min == Max gives fixed delay, which is what link reconnect uses by default.
// K <= 1 also gives fixed delay of Min.
// Call Failure() after failed attempt and sleep returned delay, Reset() after success.
type Backoff struct {
	next int64 // atomic align

	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms
}

// Failure returns delay to wait now and increases next one by K.
func (b *Backoff) Failure() time.Duration {
	current := time.Duration(atomic.LoadInt64(&b.next))
	if current == 0 {
		current = b.Min
	}
	current = b.limit(current)
	next := current
	if b.K > 1 {
		next = b.limit(time.Duration(float32(current) * b.K))
	}
	atomic.StoreInt64(&b.next, int64(next))
	return current
}

// Peek returns delay next Failure() would return, without changing state.
func (b *Backoff) Peek() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		next = b.Min
	}
	return b.limit(next)
}

func (b *Backoff) Reset() {
	atomic.StoreInt64(&b.next, int64(b.Min))
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max >= b.Min && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
