// Package netdev is the net-device façade: one raw-frame link (the
// primary NIC, or a backup), its TX buffer, link-state edge detector
// and rolling statistics. The master's frame packer and RX demux talk
// only to this interface; Device itself never parses EtherCAT
// datagrams.
package netdev

import "sync"

// Device is a raw-frame transport the master sends EtherCAT frames
// over and receives them back from. Implementations: rawsock (Linux
// AF_PACKET, production) and virtual (in-memory loopback, tests).
type Device interface {
	// Name identifies the device for logging and configuration.
	Name() string
	// GetTxBuffer returns a writable region sized for one max-MTU
	// frame, already positioned past the 14-byte Ethernet header —
	// the frame packer writes the EtherCAT frame header at offset 0
	// of the returned slice.
	GetTxBuffer() []byte
	// Send transmits sizePayload bytes from the buffer returned by
	// the most recent GetTxBuffer call.
	Send(sizePayload int) error
	// PollLink re-reads carrier state and returns the current
	// link-up flag, updating LinkUp().
	PollLink() bool
	// LinkUp reports the last-polled link-state.
	LinkUp() bool
	// Stats returns a snapshot of the rolling TX/RX counters.
	Stats() Stats
	// SetReceiver installs the callback invoked with each inbound
	// frame's payload (Ethernet header already stripped).
	SetReceiver(func(frame []byte))
	// Close releases any underlying OS resources.
	Close() error
}

// Stats holds raw counters plus first-order low-pass filtered rates
// over 1s/10s/60s windows, refreshed at most once per second.
type Stats struct {
	TxCount  uint64
	RxCount  uint64
	TxBytes  uint64
	RxBytes  uint64
	TxErrors uint64

	lastJiffiesNS int64
	prevTxCount   uint64
	prevRxCount   uint64
	prevTxBytes   uint64
	prevRxBytes   uint64

	TxRate [3]float64 // frames/s, low-pass over 1/10/60 s
	RxRate [3]float64
	Loss   [3]float64 // tx_count - rx_count over the interval, low-pass
}

// rateIntervals mirrors the three low-pass time constants the
// original firmware samples at (1s, 10s, 60s).
var rateIntervals = [3]float64{1, 10, 60}

type statsTracker struct {
	mu sync.Mutex
	s  Stats
}

// update applies the once-per-second low-pass refresh:
//
//	y += (x - y) / tau
//
// where x is the one-second delta in the counter, guarded by
// now-lastJiffies >= 1s so bursts within a second don't skew the
// filter.
func (t *statsTracker) update(nowNS int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if nowNS-t.s.lastJiffiesNS < int64(1_000_000_000) {
		return
	}
	txDelta := float64(t.s.TxCount - t.s.prevTxCount)
	rxDelta := float64(t.s.RxCount - t.s.prevRxCount)
	lossDelta := txDelta - rxDelta
	for i, tau := range rateIntervals {
		t.s.TxRate[i] += (txDelta - t.s.TxRate[i]) / tau
		t.s.RxRate[i] += (rxDelta - t.s.RxRate[i]) / tau
		t.s.Loss[i] += (lossDelta - t.s.Loss[i]) / tau
	}
	t.s.prevTxCount = t.s.TxCount
	t.s.prevRxCount = t.s.RxCount
	t.s.prevTxBytes = t.s.TxBytes
	t.s.prevRxBytes = t.s.RxBytes
	t.s.lastJiffiesNS = nowNS
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

func (t *statsTracker) addTx(bytes int) {
	t.mu.Lock()
	t.s.TxCount++
	t.s.TxBytes += uint64(bytes)
	t.mu.Unlock()
}

func (t *statsTracker) addTxError() {
	t.mu.Lock()
	t.s.TxErrors++
	t.mu.Unlock()
}

func (t *statsTracker) addRx(bytes int) {
	t.mu.Lock()
	t.s.RxCount++
	t.s.RxBytes += uint64(bytes)
	t.mu.Unlock()
}
