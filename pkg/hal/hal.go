// Package hal collects the small OS-abstraction surface the master
// needs from its environment: a monotonic clock and a periodic timer.
// Production code uses the default implementation backed by the
// standard library; tests substitute a fake clock to drive timeout
// and DC-convergence scenarios deterministically.
package hal

import "time"

// Clock returns monotonic nanosecond timestamps. The zero value of no
// clock is never valid; callers always receive one from
// NewSystemClock or a test fake.
type Clock interface {
	NowNS() int64
}

// Ticker fires Period on its channel until Stop is called, mirroring
// time.Ticker closely enough that the default implementation is a
// thin wrapper and fakes can drive it manually from tests.
type Ticker interface {
	C() <-chan time.Time
	Reset(period time.Duration)
	Stop()
}

type systemClock struct{ start time.Time }

// NewSystemClock returns a Clock backed by time.Now, monotonic by
// construction since Go's time.Time carries a monotonic reading
// whenever it is produced by time.Now.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) NowNS() int64 {
	return time.Since(c.start).Nanoseconds()
}

type systemTicker struct {
	t *time.Ticker
}

// NewSystemTicker returns a Ticker backed by time.NewTicker.
func NewSystemTicker(period time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(period)}
}

func (s *systemTicker) C() <-chan time.Time       { return s.t.C }
func (s *systemTicker) Reset(period time.Duration) { s.t.Reset(period) }
func (s *systemTicker) Stop()                      { s.t.Stop() }
