package master

import (
	"context"
	"time"

	"github.com/netfieldbus/goethercat"
	"github.com/netfieldbus/goethercat/pkg/datagram"
	"github.com/netfieldbus/goethercat/pkg/dc"
	"github.com/netfieldbus/goethercat/pkg/state"
)

// Init brings the master from PhaseUnknown to PhaseIdle and launches
// the three background tasks (periodic/non-periodic/scan) under ctx.
// Operation is entered separately via Start, once a scan has
// populated the slave table.
func (m *Master) Init(ctx context.Context) error {
	m.scanMu.Lock()
	if m.phase != PhaseUnknown {
		m.scanMu.Unlock()
		return nil
	}
	m.phase = PhaseIdle
	m.scanMu.Unlock()

	m.tasks.Start(ctx)
	return nil
}

// Start implements IDLE -> OPERATION: under scanMu, compute each
// slave's logical_start_address/odata_size/idata_size from the
// installed slave table and sync-info, build the FMMU/PDO arena,
// derive expected_working_counter, suspend the non-periodic task so
// the periodic task owns the NIC exclusively, and request every
// slave to reach Op.
//
// cycle_time below MinCycleTime and an empty slave table are
// structural invariant violations: Start refuses to proceed and
// panics via assert rather than entering Operation half-configured.
func (m *Master) Start() error {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	m.assert(m.phase == PhaseIdle, "Start called outside IDLE phase (phase=%s)", m.phase)
	m.assert(m.cfg.CycleTime >= MinCycleTime, "cycle_time %s below floor %s", m.cfg.CycleTime, MinCycleTime)
	m.assert(m.cfg.ShiftTime <= m.cfg.CycleTime, "shift_time %s must not exceed cycle_time %s", m.cfg.ShiftTime, m.cfg.CycleTime)
	m.assert(len(m.slaves) > 0, "Start called with no slaves configured")

	var logicalAddr uint32
	var expectedWC uint16
	for _, s := range m.slaves {
		out := s.SyncInfo.OutputSize
		in := s.SyncInfo.InputSize
		s.SetArena(logicalAddr, out, in)
		s.ExpectedWorkingCounter = 3
		expectedWC += 3
		logicalAddr += uint32(out) + uint32(in)
	}
	m.actualPDOSize = logicalAddr

	m.pdoArena = make([]byte, m.actualPDOSize)
	if m.cfg.PDOMultiDomain {
		m.pdoDatagramsBySlave = make([]*datagram.Datagram, len(m.slaves))
		for i, s := range m.slaves {
			size := int(s.OutputSize) + int(s.InputSize)
			buf := m.pdoArena[s.LogicalStartAddress : s.LogicalStartAddress+uint32(size)]
			m.pdoDatagramsBySlave[i] = datagram.LRW(s.LogicalStartAddress, buf)
		}
	} else {
		m.pdoDatagram = datagram.LRW(0, m.pdoArena)
	}

	// dcAllSyncDatagram accumulates the reference slave's system time
	// every cycle (read path, §4.F); dcRefSyncDatagram is write-only,
	// used only in Mode B to push the master's own clock to the
	// reference slave. Both are 8 bytes wide (64-bit system time),
	// matching the original firmware's ec_master_init.
	m.dcAllSyncDatagram = datagram.New(ethercat.CmdFRMW, 0, 8)
	m.dcRefSyncDatagram = datagram.New(ethercat.CmdBWR, 0, 8)
	if m.dcRefSlave != nil {
		m.dcController = dc.New(m.cfg.DCMode, m.cfg.CycleTime.Nanoseconds(), m.cfg.ShiftTime.Nanoseconds(), m.cfg.DCSyncWithRef)
	}

	m.expectedWorkingCounter = expectedWC
	m.nonPeriodSuspended.set(true)

	for _, s := range m.slaves {
		s.States.Request(state.Op)
	}

	m.phase = PhaseOperation
	m.started = true
	return nil
}

// Stop implements OPERATION -> IDLE: request every slave back to
// PreOp, spin (bounded) until each reaches it or its link drops, then
// clear the PDO datagrams and resume the non-periodic task.
func (m *Master) Stop() error {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	if m.phase != PhaseOperation {
		return nil
	}
	for _, s := range m.slaves {
		s.States.Request(state.PreOp)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		allDown := true
		for _, dev := range m.netdevs {
			if dev.LinkUp() {
				allDown = false
			}
		}
		if allDown {
			break
		}
		allReached := true
		for _, s := range m.slaves {
			if !s.States.Reached() {
				allReached = false
				break
			}
		}
		if allReached {
			break
		}
		time.Sleep(time.Millisecond)
	}

	m.pdoDatagram = nil
	m.pdoDatagramsBySlave = nil
	m.nonPeriodSuspended.set(false)
	m.phase = PhaseIdle
	return nil
}

// Close performs final teardown: stop the hardware timer (cancel the
// task context), wait for the periodic/non-periodic/scan goroutines
// to exit, and drain the queue marking every remaining datagram
// Error. This resolves the original firmware's empty deinit with an
// explicit, observable teardown instead.
func (m *Master) Close() error {
	if m.Phase() == PhaseOperation {
		_ = m.Stop()
	}
	m.tasks.Stop()
	m.tasks.Wait()

	pending := m.queue.Snapshot(-1, datagram.Queued, datagram.Sent)
	for _, d := range pending {
		m.queue.MarkError(d, ethercat.ErrIO)
	}
	return nil
}
