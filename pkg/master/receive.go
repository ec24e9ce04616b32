package master

import (
	"github.com/netfieldbus/goethercat"
	"github.com/netfieldbus/goethercat/pkg/datagram"
	"github.com/netfieldbus/goethercat/pkg/netdev"
)

// handleFrame is installed as each net-device's receiver callback. It
// implements the RX demultiplexer: validate the frame header, walk
// embedded datagrams, match each to the queue, copy back read-type
// payloads and record the working counter.
func (m *Master) handleFrame(dev netdev.Device, frame []byte) {
	if len(frame) < ethercat.FrameHeaderSize {
		m.mu.Lock()
		m.stats.Corrupted++
		m.mu.Unlock()
		return
	}
	areaLen, _ := ethercat.FrameHeader(frame)
	frameEnd := ethercat.FrameHeaderSize + areaLen
	if frameEnd > len(frame) {
		m.mu.Lock()
		m.stats.Corrupted++
		m.mu.Unlock()
		return
	}

	now := m.clock.NowNS()
	cursor := ethercat.FrameHeaderSize
	for cursor+ethercat.DatagramHeaderSize <= frameEnd {
		hdr := ethercat.ParseDatagramHeader(frame[cursor:])
		payloadStart := cursor + ethercat.DatagramHeaderSize
		payloadEnd := payloadStart + hdr.Length
		wcEnd := payloadEnd + ethercat.WorkingCounterSize
		if wcEnd > frameEnd {
			m.mu.Lock()
			m.stats.Corrupted++
			m.mu.Unlock()
			return
		}

		m.matchAndComplete(hdr, frame[payloadStart:payloadEnd], frame[payloadEnd:wcEnd], now)

		if !hdr.MoreFollows {
			break
		}
		cursor = wcEnd
	}
}

// matchAndComplete linear-scans the queue for the first SENT datagram
// with identical (index, command, data size); the oldest match wins
// on ties, which is queue order since Snapshot walks head to tail.
func (m *Master) matchAndComplete(hdr ethercat.DatagramHeader, payload, wc []byte, nowNS int64) {
	candidates := m.queue.Snapshot(-1, datagram.Sent)
	for _, d := range candidates {
		if d.Index != hdr.Index || d.Command != hdr.Command || d.DataSize != hdr.Length {
			continue
		}
		if ethercat.IsReadCommand(hdr.Command) {
			copy(d.Data[:d.DataSize], payload)
		}
		workingCounter := uint16(wc[0]) | uint16(wc[1])<<8
		m.queue.MarkReceived(d, workingCounter, nowNS)
		return
	}
	m.mu.Lock()
	m.stats.Unmatched++
	m.mu.Unlock()
}
