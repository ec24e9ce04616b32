package master

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netfieldbus/goethercat/pkg/dc"
	"github.com/netfieldbus/goethercat/pkg/hal"
)

// taskController owns the three master goroutines (periodic,
// non-periodic, scan) and their lifecycle, the same context.Context +
// sync.WaitGroup + cancel shape as the teacher's node.NodeProcessor:
// Start spawns the goroutines, Stop cancels their context, Wait joins
// them.
type taskController struct {
	m      *Master
	logger *logrus.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	wakeCh chan struct{}
	ticker hal.Ticker // owned by periodic(); applyOffset reprograms it from the same goroutine
}

func newTaskController(m *Master, logger *logrus.Logger) *taskController {
	return &taskController{
		m:      m,
		logger: logger,
		wakeCh: make(chan struct{}, 1),
	}
}

// Start launches the periodic, non-periodic and scan tasks. Call Stop
// to request shutdown and Wait to block until all three have
// returned.
func (t *taskController) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.periodic(ctx)
	}()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.nonPeriodic(ctx)
	}()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.scan(ctx)
	}()
}

// Stop cancels the shared context; the three tasks observe
// ctx.Done() and return.
func (t *taskController) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Wait blocks until all three tasks have returned.
func (t *taskController) Wait() { t.wg.Wait() }

func (t *taskController) wakeNonPeriodic() {
	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
}

// periodic is the hard-real-time task: one tick per CycleTime, never
// blocking except for the queue's short critical section. It consumes
// the previous cycle's RX results, builds this cycle's DC and PDO
// datagrams, then calls Send.
func (t *taskController) periodic(ctx context.Context) {
	m := t.m
	ticker := hal.NewSystemTicker(m.cfg.CycleTime)
	t.ticker = ticker
	defer ticker.Stop()
	t.logger.WithField("service", "[MASTER]").Info("periodic task started")
	lastT0 := m.clock.NowNS()
	for {
		select {
		case <-ctx.Done():
			t.logger.WithField("service", "[MASTER]").Info("periodic task stopped")
			return
		case tick := <-ticker.C():
			t0 := m.clock.NowNS()
			m.runPeriodTick()
			now := m.clock.NowNS()
			m.updatePerf(t0-lastT0, now-t0)
			lastT0 = t0
			_ = tick
		}
	}
}

// nonPeriodic is the best-effort task: it waits on a wake signal or
// the configured interval, then flushes any mailbox/scan datagrams
// queued since the last wake. If the periodic task has asked for
// exclusive NIC ownership (Operation phase bring-up), it suspends
// itself instead of calling Send.
func (t *taskController) nonPeriodic(ctx context.Context) {
	m := t.m
	interval := m.cfg.NonPeriodInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	t.logger.WithField("service", "[MASTER]").Info("non-periodic task started")
	for {
		select {
		case <-ctx.Done():
			t.logger.WithField("service", "[MASTER]").Info("non-periodic task stopped")
			return
		case <-t.wakeCh:
		case <-timer.C:
			timer.Reset(interval)
		}
		if m.nonPeriodSuspended.get() {
			continue
		}
		m.Send()
	}
}

// scan is the topology-rescan task: once per configured scan interval
// it checks whether RequestRescan has flagged a rescan and, if so,
// calls the installed Scanner collaborator (scanMu is held only while
// reading the installed function, not during the call).
func (t *taskController) scan(ctx context.Context) {
	m := t.m
	interval := m.cfg.ScanInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	t.logger.WithField("service", "[MASTER]").Info("scan task started")
	for {
		select {
		case <-ctx.Done():
			t.logger.WithField("service", "[MASTER]").Info("scan task stopped")
			return
		case <-ticker.C:
			if !m.rescanRequested.get() {
				continue
			}
			m.rescanRequested.set(false)
			m.scanMu.Lock()
			fn := m.scanner
			m.scanMu.Unlock()
			if fn != nil {
				if err := fn(m); err != nil {
					t.logger.WithField("service", "[MASTER]").WithError(err).Warn("rescan failed")
				}
			}
		}
	}
}

// runPeriodTick implements the periodic task body: consume the
// previous cycle's PDO results, DC discipline, enqueue the all-slaves
// sync datagram, enqueue the PDO datagram(s), then call Send.
func (m *Master) runPeriodTick() {
	if m.Phase() == PhaseOperation {
		m.consumePDOResults()
		m.scheduleDC()
		m.schedulePDO()
	}
	m.Send()
}

// scheduleDC implements Mode A/B dispatch (§4.F): Mode A reads the
// previously received all-slaves sync datagram and folds it into the
// PI controller to steer the next tick's period; Mode B additionally
// builds a system-time datagram from now and writes it to the
// reference slave. Both modes re-enqueue the all-slaves sync read for
// next cycle.
func (m *Master) scheduleDC() {
	if m.dcController == nil {
		return
	}
	if m.dcAllSyncDatagram != nil && m.dcAllSyncDatagram.State().String() == "RECEIVED" {
		refTime := int64(0)
		data := m.dcAllSyncDatagram.Data
		for i := len(data) - 1; i >= 0; i-- {
			refTime = refTime<<8 | int64(data[i])
		}
		offset := m.dcController.ApplyReferenceTime(refTime)
		m.tasks.applyOffset(offset)
	}

	if m.dcController.Mode == dc.ModeB && m.dcRefSyncDatagram != nil {
		now := m.clock.NowNS()
		data := m.dcRefSyncDatagram.Data
		for i := 0; i < len(data) && i < 8; i++ {
			data[i] = byte(now >> (8 * i))
		}
		m.Enqueue(m.dcRefSyncDatagram, 0)
	}

	if m.dcAllSyncDatagram != nil {
		m.dcAllSyncDatagram.Zero()
		m.Enqueue(m.dcAllSyncDatagram, 0)
	}
}

// schedulePDO enqueues the PDO datagram(s) for this cycle: one global
// LRW in single-domain mode, one per slave in multi-domain mode.
func (m *Master) schedulePDO() {
	if m.cfg.PDOMultiDomain {
		for _, d := range m.pdoDatagramsBySlave {
			if d != nil {
				m.Enqueue(d, 0)
			}
		}
		return
	}
	if m.pdoDatagram != nil {
		m.Enqueue(m.pdoDatagram, 0)
	}
}

// consumePDOResults runs after Send, matching §4.E step "after RX in
// OPERATION phase": for a Received PDO datagram, invoke each slave's
// callback with pointers into the arena and sum working counters.
func (m *Master) consumePDOResults() {
	if m.cfg.PDOMultiDomain {
		var sum uint16
		for i, d := range m.pdoDatagramsBySlave {
			if d == nil || d.State().String() != "RECEIVED" {
				continue
			}
			sum += d.WorkingCounter()
			if i < len(m.slaves) {
				m.slaves[i].InvokeCallback(m.slaves[i].LogicalStartAddress, d.Data)
			}
		}
		m.mu.Lock()
		m.actualWorkingCounter = sum
		m.mu.Unlock()
		return
	}
	if m.pdoDatagram == nil || m.pdoDatagram.State().String() != "RECEIVED" {
		return
	}
	wc := m.pdoDatagram.WorkingCounter()
	m.mu.Lock()
	m.actualWorkingCounter = wc
	m.mu.Unlock()
	for _, s := range m.slaves {
		s.InvokeCallback(0, m.pdoArena)
	}
}

// applyOffset folds a DC correction into the periodic ticker's next
// period, clamped so a runaway correction can never invert the tick.
// Called from scheduleDC, itself only ever called from periodic()'s
// own goroutine, so reprogramming t.ticker here is safe without a
// lock — Reset must run on the goroutine that owns the Ticker.
func (t *taskController) applyOffset(offsetNS int64) {
	m := t.m
	next := m.cfg.CycleTime + time.Duration(offsetNS)
	if next < m.cfg.CycleTime/2 {
		next = m.cfg.CycleTime / 2
	}
	if next > m.cfg.CycleTime*2 {
		next = m.cfg.CycleTime * 2
	}
	if t.ticker != nil {
		t.ticker.Reset(next)
	}
	m.mu.Lock()
	m.perf.DCOffsetNS = offsetNS
	m.mu.Unlock()
}
