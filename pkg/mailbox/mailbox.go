// Package mailbox provides raw read/write access to a slave's
// acyclic mailbox channel. CoE, FoE and EoE object semantics are out
// of scope for the core per the spec's non-goals — this package
// carries only opaque payloads, built as one-shot datagrams queued
// through the master's QueueExtDatagram contract. Grounded on the
// teacher's pkg/sdo client upload/download state machine (expedited
// fast path, segmented fallback for larger transfers), trimmed to the
// two cases this spec needs and stripped of SDO object-dictionary
// semantics.
package mailbox

import (
	"encoding/binary"
	"fmt"

	"github.com/netfieldbus/goethercat"
	"github.com/netfieldbus/goethercat/pkg/datagram"
	"github.com/netfieldbus/goethercat/pkg/master"
)

// Protocol identifies the mailbox sub-protocol carried in the mailbox
// header's type field, matched against the originating CoE/FoE/EoE
// request by the caller — the core never interprets the payload.
type Protocol uint8

const (
	ProtocolCoE Protocol = 0x03
	ProtocolFoE Protocol = 0x04
	ProtocolEoE Protocol = 0x02
)

// expeditedLimit is the largest mailbox area a single EtherCAT frame
// can carry. This package has no segmented path: WriteRaw bounds
// payloads by the SyncManager's outSize instead.
const expeditedLimit = 1486 // MTU-bounded single EtherCAT frame mailbox area

// headerSize is the fixed 6-byte EtherCAT mailbox header: length(2),
// address(2), priority/type(1), counter(1).
const headerSize = 6

// Channel is bound to one slave's mailbox SyncManagers (out: master ->
// slave, in: slave -> master), addressed by fixed station address and
// register offsets configured by the scanner/sync-info table.
type Channel struct {
	m           *master.Master
	station     uint16
	outOffset   uint16
	outSize     uint16
	inOffset    uint16
	inSize      uint16
	counter     uint8
}

// NewChannel returns a Channel over the slave's mailbox-out and
// mailbox-in SyncManagers.
func NewChannel(m *master.Master, station uint16, outOffset, outSize, inOffset, inSize uint16) *Channel {
	return &Channel{m: m, station: station, outOffset: outOffset, outSize: outSize, inOffset: inOffset, inSize: inSize, counter: 1}
}

// WriteRaw sends payload as one mailbox message of the given
// protocol. Payloads that fit the SyncManager's outSize in one frame
// go out as a single FPWR; larger payloads are rejected with
// ErrCoESize and never split here — FoE file transfer chunking is the caller's responsibility since
// the chunk boundary is protocol-specific, which the core treats as
// opaque.
func (c *Channel) WriteRaw(proto Protocol, payload []byte) error {
	if len(payload) > int(c.outSize)-headerSize {
		return fmt.Errorf("mailbox: payload %d exceeds SyncManager size: %w", len(payload), ethercat.ErrCoESize)
	}
	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint16(frame[0:2], uint16(len(payload)))
	binary.LittleEndian.PutUint16(frame[2:4], 0) // address: master
	frame[4] = byte(proto) & 0x0F
	frame[5] = c.nextCounter()
	copy(frame[headerSize:], payload)

	d := datagram.FPWR(c.station, c.outOffset, frame)
	if err := c.m.QueueExtDatagram(d, 0, true, true); err != nil {
		return fmt.Errorf("mailbox: write: %w", ethercat.ErrMailbox)
	}
	return nil
}

// ReadRaw polls the mailbox-in SyncManager once and returns the
// payload if one is pending, or ErrMailboxEmpty if the slave has
// nothing queued (SM1 status bit not set is the caller's concern to
// check before calling; here an all-zero length is treated as empty).
func (c *Channel) ReadRaw() (Protocol, []byte, error) {
	d := datagram.FPRD(c.station, c.inOffset, int(c.inSize))
	if err := c.m.QueueExtDatagram(d, 0, true, true); err != nil {
		return 0, nil, fmt.Errorf("mailbox: read: %w", ethercat.ErrMailbox)
	}
	if d.DataSize < headerSize {
		return 0, nil, ethercat.ErrMailboxEmpty
	}
	length := binary.LittleEndian.Uint16(d.Data[0:2])
	if length == 0 {
		return 0, nil, ethercat.ErrMailboxEmpty
	}
	proto := Protocol(d.Data[4] & 0x0F)
	if int(length)+headerSize > d.DataSize {
		return 0, nil, fmt.Errorf("mailbox: truncated reply: %w", ethercat.ErrCoESize)
	}
	payload := make([]byte, length)
	copy(payload, d.Data[headerSize:headerSize+int(length)])
	return proto, payload, nil
}

func (c *Channel) nextCounter() uint8 {
	c.counter++
	if c.counter == 0 || c.counter > 7 {
		c.counter = 1
	}
	return c.counter
}
