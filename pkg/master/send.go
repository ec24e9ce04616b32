package master

import (
	"github.com/netfieldbus/goethercat"
	"github.com/netfieldbus/goethercat/pkg/datagram"
)

// Send runs one full send cycle: timeout sweep, link-down
// cancellation, then frame packing per link (each net-device refreshes
// its own statistics as it transmits and receives frames). It is
// called from the periodic task after enqueueing this cycle's DC/PDO
// datagrams, and from the non-periodic task to flush mailbox
// datagrams. Never allocates on a path already holding datagrams
// pre-allocated at Start; one-shot collaborator datagrams are the
// exception, off the hot path.
func (m *Master) Send() {
	now := m.clock.NowNS()

	m.timeoutSweep(now)

	for idx, dev := range m.netdevs {
		if !dev.PollLink() {
			m.cancelLink(idx)
			continue
		}
		m.packLink(idx, dev, now)
	}
}

// timeoutSweep transitions every SENT datagram whose deadline has
// passed to TimedOut, dequeuing it and signaling its waiter.
func (m *Master) timeoutSweep(nowNS int64) {
	deadline := DatagramTimeout.Nanoseconds()
	pending := m.queue.Snapshot(-1, datagram.Sent)
	for _, d := range pending {
		if nowNS-d.SentNS > deadline {
			m.queue.MarkTimedOut(d, ethercat.ErrTimeout)
			m.mu.Lock()
			m.stats.Timeouts++
			m.mu.Unlock()
		}
	}
}

// cancelLink marks every datagram addressed to a down link as Error,
// dequeuing it and signaling waiters. The link's statistics are left
// as they are; nothing here resets them.
func (m *Master) cancelLink(netdevIdx int) {
	pending := m.queue.Snapshot(netdevIdx, datagram.Queued, datagram.Sent)
	for _, d := range pending {
		m.queue.MarkError(d, ethercat.ErrLinkDown)
	}
}

// packLink implements the per-link packing algorithm: walk queued
// datagrams in order, pack back-to-back into frames bounded by the
// Ethernet MTU, and hand each full frame to the net-device.
func (m *Master) packLink(netdevIdx int, dev interface {
	GetTxBuffer() []byte
	Send(int) error
}, nowNS int64) {
	pending := m.queue.Snapshot(netdevIdx, datagram.Queued)
	i := 0
	for i < len(pending) {
		buf := dev.GetTxBuffer()
		cursor := ethercat.FrameHeaderSize // reserve the 2-byte frame header
		var prevHeaderOffset = -1
		var packed []*datagram.Datagram

		for i < len(pending) {
			d := pending[i]
			need := ethercat.DatagramHeaderSize + d.DataSize + ethercat.WorkingCounterSize
			if cursor+need > ethercat.EthernetMTU {
				break
			}
			if prevHeaderOffset >= 0 {
				ethercat.SetMoreFollows(buf[prevHeaderOffset:])
			}

			m.mu.Lock()
			idx := m.nextDatagramIndexLocked()
			m.mu.Unlock()

			hdr := ethercat.DatagramHeader{
				Command: d.Command,
				Index:   idx,
				Address: d.Address,
				Length:  d.DataSize,
			}
			ethercat.PutDatagramHeader(buf[cursor:], hdr)
			prevHeaderOffset = cursor
			copy(buf[cursor+ethercat.DatagramHeaderSize:], d.Data[:d.DataSize])
			wcOffset := cursor + ethercat.DatagramHeaderSize + d.DataSize
			buf[wcOffset] = 0
			buf[wcOffset+1] = 0

			cursor += need
			packed = append(packed, d)
			d.Index = idx
			i++
		}

		if len(packed) == 0 {
			// A single datagram exceeds the MTU on its own; this is a
			// structural invariant violation (scanner/config bug), not
			// a runtime condition to recover from.
			m.assert(false, "datagram payload %d exceeds link MTU", pending[i].DataSize)
			return
		}

		ethercat.PutFrameHeader(buf, cursor-ethercat.FrameHeaderSize)
		total := cursor
		if total < ethercat.MinFrameSize {
			for i := cursor; i < ethercat.MinFrameSize; i++ {
				buf[i] = 0
			}
			total = ethercat.MinFrameSize
		}
		// Mark Sent before handing the frame over: a device may deliver
		// the reply before Send returns, and RX only matches Sent
		// datagrams.
		for _, d := range packed {
			m.queue.MarkSent(d, d.Index, nowNS)
		}
		if err := dev.Send(total); err != nil {
			for _, d := range packed {
				m.queue.MarkError(d, ethercat.ErrIO)
			}
		}
	}
}
