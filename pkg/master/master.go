// Package master implements the EtherCAT master core: the datagram
// queue and frame packer, the RX demultiplexer, the two-thread
// (periodic/non-periodic) processing loop and the phase transitions
// between Idle and Operation. The concurrency shape — context-driven
// goroutines joined through a sync.WaitGroup, started and stopped
// through an explicit controller — is the teacher's pkg/node
// NodeProcessor pattern, generalized from CANopen NMT/PDO processing
// to the EtherCAT scheduler and DC discipline.
package master

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netfieldbus/goethercat"
	"github.com/netfieldbus/goethercat/pkg/datagram"
	"github.com/netfieldbus/goethercat/pkg/dc"
	"github.com/netfieldbus/goethercat/pkg/hal"
	"github.com/netfieldbus/goethercat/pkg/netdev"
	"github.com/netfieldbus/goethercat/pkg/slave"
)

// Phase is the master's top-level operating phase.
type Phase uint8

const (
	PhaseUnknown Phase = iota
	PhaseIdle
	PhaseOperation
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseOperation:
		return "OPERATION"
	default:
		return "UNKNOWN"
	}
}

// DatagramTimeout is the fixed 50ms deadline after which a SENT
// datagram is declared lost.
const DatagramTimeout = 50 * time.Millisecond

// MinCycleTime is the structural floor below which Start refuses to
// enter Operation — a real-time tick this short cannot be serviced by
// any software periodic task.
const MinCycleTime = 40 * time.Microsecond

// Stats are the hot-path failure counters the spec requires to never
// crash the master: every corrupted frame, unmatched reply and
// datagram timeout is recorded here instead.
type Stats struct {
	Timeouts  uint64
	Corrupted uint64
	Unmatched uint64
}

// PerfCounters are the periodic-task performance counters reported by
// pkg/metrics and the CLI's `perf` command.
type PerfCounters struct {
	MinPeriodNS int64
	MaxPeriodNS int64
	AvgPeriodNS int64
	SendExecNS  int64
	RecvExecNS  int64
	DCOffsetNS  int64

	cycles int64
	sumNS  int64
}

// Config holds the runtime and compile-time-equivalent options the
// original firmware took as Kconfig/runtime inputs: cycle/shift time,
// DC mode, and the background tasks' polling intervals.
type Config struct {
	CycleTime         time.Duration
	ShiftTime         time.Duration
	DCMode            dc.Mode
	DCSyncWithRef     bool
	PDOMultiDomain    bool
	NonPeriodInterval time.Duration
	ScanInterval      time.Duration
}

// Master aggregates the net-devices, the pending-datagram queue,
// current phase and slave table. All fields touched by more than one
// task are behind mu (the short critical section) or scanMu (the long
// structural-rebuild mutex never held by the periodic task).
type Master struct {
	logger *logrus.Logger
	clock  hal.Clock
	cfg    Config

	netdevs []netdev.Device

	queue     *datagram.Queue
	mu        sync.Mutex // critical section: nextIndex, stats, perf
	nextIndex uint8
	stats     Stats
	perf      PerfCounters

	scanMu  sync.Mutex
	phase   Phase
	started bool

	slaves            []*slave.Slave
	dcRefSlave        *slave.Slave
	dcController      *dc.Controller
	dcRefSyncDatagram *datagram.Datagram
	dcAllSyncDatagram *datagram.Datagram

	pdoArena            []byte
	pdoDatagram         *datagram.Datagram   // single-domain LRW
	pdoDatagramsBySlave []*datagram.Datagram // multi-domain, parallel to slaves
	actualPDOSize       uint32

	expectedWorkingCounter uint16
	actualWorkingCounter   uint16

	nonPeriodSuspended boolFlag

	tasks *taskController

	rescanRequested boolFlag
	scanner         func(*Master) error
}

// SetScanner installs the topology-rescan collaborator invoked by the
// scan task whenever a rescan is requested.
func (m *Master) SetScanner(fn func(*Master) error) {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	m.scanner = fn
}

// boolFlag is a tiny mutex-guarded bool; plain sync/atomic.Bool would
// do too, but the teacher's codebase favors an explicit mutex for
// every piece of cross-task state, so this follows suit.
type boolFlag struct {
	mu sync.Mutex
	v  bool
}

func (b *boolFlag) set(v bool) { b.mu.Lock(); b.v = v; b.mu.Unlock() }
func (b *boolFlag) get() bool  { b.mu.Lock(); defer b.mu.Unlock(); return b.v }

// New constructs a Master over the given net-devices (index 0 is
// primary, index 1 an optional backup link) and configuration. The
// master starts in PhaseUnknown/not-started; Init brings it to
// PhaseIdle, and Start then brings it to PhaseOperation.
func New(devices []netdev.Device, cfg Config, logger *logrus.Logger) (*Master, error) {
	if len(devices) == 0 || len(devices) > 2 {
		return nil, fmt.Errorf("master: %w: need 1 or 2 net-devices, got %d", ethercat.ErrInvalidArgument, len(devices))
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Master{
		logger:  logger,
		clock:   hal.NewSystemClock(),
		cfg:     cfg,
		netdevs: devices,
		queue:   datagram.NewQueue(),
		phase:   PhaseUnknown,
	}
	m.tasks = newTaskController(m, logger)
	for _, d := range devices {
		dev := d
		dev.SetReceiver(func(frame []byte) { m.handleFrame(dev, frame) })
	}
	return m, nil
}

// assert panics after logging, matching the spec's directive that
// structural invariant violations must trap and log rather than
// silently continue — Go has no compiled-out asserts, so this always
// fires, which is stricter than (never weaker than) the spec
// requires.
func (m *Master) assert(cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	m.logger.WithField("service", "[MASTER]").Error("assertion failed: " + msg)
	panic("ethercat master: " + msg)
}

// Phase returns the current top-level phase.
func (m *Master) Phase() Phase {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	return m.phase
}

// Stats returns a copy of the hot-path failure counters.
func (m *Master) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Perf returns a copy of the periodic-task performance counters.
func (m *Master) Perf() PerfCounters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perf
}

// ActualWorkingCounter returns the working counter summed from the
// most recent completed PDO cycle.
func (m *Master) ActualWorkingCounter() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actualWorkingCounter
}

// ExpectedWorkingCounter returns expected_working_counter, computed at
// Start as 3 per slave (one SyncManager-check contribution per
// EtherCAT command class participating in the LRW).
func (m *Master) ExpectedWorkingCounter() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expectedWorkingCounter
}

// Slaves returns the slave table populated by the scanner.
func (m *Master) Slaves() []*slave.Slave {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	out := make([]*slave.Slave, len(m.slaves))
	copy(out, m.slaves)
	return out
}

// SetSlaves installs the slave table discovered by an external
// scanner; must be called before Start, under no other task running.
func (m *Master) SetSlaves(slaves []*slave.Slave) {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	m.slaves = slaves
}

// SetDCReference designates which slave's system time Mode A reads
// each cycle.
func (m *Master) SetDCReference(s *slave.Slave) {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	m.dcRefSlave = s
}

// nextDatagramIndexLocked returns the next 8-bit rolling index, monotone
// modulo 256. Caller must hold m.mu.
func (m *Master) nextDatagramIndexLocked() uint8 {
	idx := m.nextIndex
	m.nextIndex++
	return idx
}

// RequestRescan flags the scan task to re-walk the segment on its
// next wake, used when the operator CLI issues `rescan`.
func (m *Master) RequestRescan() { m.rescanRequested.set(true) }

// Logger exposes the configured logger for collaborators (scanner,
// mailbox, sii) that want consistent fields.
func (m *Master) Logger() *logrus.Logger { return m.logger }

// Clock exposes the monotonic clock collaborators time their own
// operations against.
func (m *Master) Clock() hal.Clock { return m.clock }

// Enqueue assigns d to link netdevIdx and appends it to the
// pending-datagram queue. The periodic task uses it for the DC/PDO
// datagrams and QueueExtDatagram for collaborators' one-shots.
func (m *Master) Enqueue(d *datagram.Datagram, netdevIdx int) {
	d.NetdevIdx = netdevIdx
	m.queue.Enqueue(d)
}
