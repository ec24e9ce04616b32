// Package dc implements distributed-clock discipline: the
// proportional-integral controller that steers the periodic tick
// toward the reference slave's system time (Mode A), or the
// alternative where the master instead drives the reference clock
// from its own system time (Mode B). Shaped after the teacher's SYNC
// object (pkg/sync) — a small Process method folding a time
// difference into a PI correction — generalized from CANopen's SYNC
// counter tolerance check to EtherCAT's nanosecond offset steering.
package dc

import "sync"

// Mode selects which side disciplines which clock.
type Mode uint8

const (
	// ModeA: master reads the reference slave's system time and
	// steers its own tick toward it.
	ModeA Mode = iota
	// ModeB: master builds a system-time datagram from its own clock
	// and broadcasts it; the reference slave integrates it into its
	// own PI loop.
	ModeB
)

// Controller is the per-master DC PI state. CycleTimeNS and
// ShiftTimeNS are fixed for the lifetime of the master (set at
// Start); Integral and last offset evolve every cycle.
type Controller struct {
	mu sync.Mutex

	Mode         Mode
	CycleTimeNS  int64
	ShiftTimeNS  int64
	SyncWithRef  bool // dc_sync_with_dc_ref_enable

	integral  int64
	lastDelta int64
	offsetNS  int64
}

// New returns a Controller for the given cycle and shift time. The
// spec's invariant that cycle_time_ns must clear a 40µs floor is
// enforced by the caller (pkg/master.Start) via its assert helper,
// not here — dc itself only computes the correction.
func New(mode Mode, cycleTimeNS, shiftTimeNS int64, syncWithRef bool) *Controller {
	return &Controller{
		Mode:        mode,
		CycleTimeNS: cycleTimeNS,
		ShiftTimeNS: shiftTimeNS,
		SyncWithRef: syncWithRef,
	}
}

func sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// mod wraps a possibly-negative dividend into [0, m).
func mod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// ApplyReferenceTime runs one PI step given the reference slave's
// system time read this cycle (Mode A). It returns the nanosecond
// correction to apply to the next tick's timer period (negative
// shortens the next period, positive lengthens it).
//
// delta = (refTime - shiftTime) mod cycleTime
// if delta > cycleTime/2: delta -= cycleTime
// integral += sign(delta)
// offset = -(delta/100) - (integral/20)
func (c *Controller) ApplyReferenceTime(refTimeNS int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	delta := mod(refTimeNS-c.ShiftTimeNS, c.CycleTimeNS)
	if delta > c.CycleTimeNS/2 {
		delta -= c.CycleTimeNS
	}
	c.integral += sign(delta)
	c.lastDelta = delta
	c.offsetNS = -(delta / 100) - (c.integral / 20)
	return c.offsetNS
}

// SystemTimeDatagram returns the nanosecond value to broadcast as the
// reference slave's new system time in Mode B, simply the master's
// own current monotonic time.
func (c *Controller) SystemTimeDatagram(nowNS int64) int64 {
	return nowNS
}

// LastOffsetNS returns the most recently computed correction, for
// performance-counter reporting.
func (c *Controller) LastOffsetNS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offsetNS
}

// LastDeltaNS returns the most recently computed (possibly negative,
// already cycle-wrapped) delta before the PI gains were applied.
func (c *Controller) LastDeltaNS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDelta
}

// Integral returns the running integral term, exposed for tests
// asserting PI convergence.
func (c *Controller) Integral() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.integral
}
