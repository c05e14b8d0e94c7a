package mexc_auth

import (
	"sync/atomic"
	"time"
)

// TimeSource supplies the epoch-millisecond timestamp stamped on a request.
type TimeSource interface {
	NowMillis() int64
}

// LocalClock trusts the local wall clock.
type LocalClock struct{}

func (LocalClock) NowMillis() int64 { return time.Now().UnixMilli() }

// OffsetClock is the local clock corrected by an offset learned from the
// exchange's time endpoint. Until Observe is called it behaves like
// LocalClock.
type OffsetClock struct {
	offsetMs atomic.Int64
	now      func() time.Time
}

func NewOffsetClock() *OffsetClock {
	return &OffsetClock{now: time.Now}
}

func (c *OffsetClock) NowMillis() int64 {
	return c.now().UnixMilli() + c.offsetMs.Load()
}

// Observe records a server time reading. The server stamped serverMs
// somewhere between sent and received, so the midpoint is the best local
// estimate of that instant.
func (c *OffsetClock) Observe(serverMs int64, sent, received time.Time) {
	mid := sent.Add(received.Sub(sent) / 2)
	c.offsetMs.Store(serverMs - mid.UnixMilli())
}

// Offset is server minus local, in milliseconds.
func (c *OffsetClock) Offset() int64 {
	return c.offsetMs.Load()
}
