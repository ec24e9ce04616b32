// Package datagram implements the single EtherCAT command: its wire
// encoding, state machine and intrusive queue linkage. A Datagram is
// never copied once queued — Queue and the frame packer in
// pkg/master operate on pointers so that timeout and link-down
// cancellation can unlink a Datagram from the middle of the queue in
// O(1), the same allocation-free discipline the teacher's hand-rolled
// ring buffer (internal/fifo) uses for its hot path.
package datagram

import (
	"sync"

	"github.com/netfieldbus/goethercat"
)

// State is the Datagram lifecycle. A Datagram is on the pending queue
// iff State is Queued or Sent.
type State uint8

const (
	Init State = iota
	Queued
	Sent
	Received
	TimedOut
	Error
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Queued:
		return "QUEUED"
	case Sent:
		return "SENT"
	case Received:
		return "RECEIVED"
	case TimedOut:
		return "TIMED_OUT"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Datagram is one EtherCAT command in flight. Fields prefixed with
// queue are the intrusive doubly-linked list used by Queue (queue.go);
// callers never touch them directly.
type Datagram struct {
	mu sync.Mutex

	Command    ethercat.Command
	Address    uint32
	Data       []byte
	DataSize   int
	Index      uint8
	NetdevIdx  int
	state      State
	workingCtr uint16

	SentNS     int64
	ReceivedNS int64

	waiter chan error

	queuePrev *Datagram
	queueNext *Datagram
	onQueue   bool
}

// New allocates a Datagram with a backing buffer of the given
// capacity. Periodic-path datagrams are allocated once during
// Master.Start and reused every cycle; one-shot mailbox/SII/scanner
// datagrams allocate per operation, off the hot path.
func New(cmd ethercat.Command, address uint32, capacity int) *Datagram {
	return &Datagram{
		Command:  cmd,
		Address:  address,
		Data:     make([]byte, capacity),
		DataSize: capacity,
	}
}

// NewStatic binds a Datagram to an externally owned buffer (the PDO
// arena) instead of allocating its own, avoiding a copy on the hot
// path for the LRW datagram(s).
func NewStatic(cmd ethercat.Command, address uint32, buf []byte) *Datagram {
	return &Datagram{
		Command:  cmd,
		Address:  address,
		Data:     buf,
		DataSize: len(buf),
	}
}

// LRW builds a logical read/write datagram over the PDO arena.
func LRW(logicalAddr uint32, buf []byte) *Datagram {
	d := NewStatic(ethercat.CmdLRW, ethercat.LogicalAddress(logicalAddr), buf)
	return d
}

// APRD builds an auto-increment-position read datagram.
func APRD(position int16, offset uint16, size int) *Datagram {
	return New(ethercat.CmdAPRD, ethercat.PositionAddress(position, offset), size)
}

// APWR builds an auto-increment-position write datagram.
func APWR(position int16, offset uint16, data []byte) *Datagram {
	d := New(ethercat.CmdAPWR, ethercat.PositionAddress(position, offset), len(data))
	copy(d.Data, data)
	d.DataSize = len(data)
	return d
}

// FPRD builds a configured-address read datagram.
func FPRD(station uint16, offset uint16, size int) *Datagram {
	return New(ethercat.CmdFPRD, ethercat.FixedAddress(station, offset), size)
}

// FPWR builds a configured-address write datagram.
func FPWR(station uint16, offset uint16, data []byte) *Datagram {
	d := New(ethercat.CmdFPWR, ethercat.FixedAddress(station, offset), len(data))
	copy(d.Data, data)
	d.DataSize = len(data)
	return d
}

// BRD builds a broadcast read datagram, used by the scanner to count
// responding slaves (BRD(0, 2)).
func BRD(offset uint16, size int) *Datagram {
	return New(ethercat.CmdBRD, ethercat.FixedAddress(0, offset), size)
}

// BWR builds a broadcast write datagram.
func BWR(offset uint16, data []byte) *Datagram {
	d := New(ethercat.CmdBWR, ethercat.FixedAddress(0, offset), len(data))
	copy(d.Data, data)
	d.DataSize = len(data)
	return d
}

// Init resets a Datagram to state Init with capacity cap, without
// reallocating the underlying buffer unless it is too small.
func (d *Datagram) Init(capacity int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cap(d.Data) < capacity {
		d.Data = make([]byte, capacity)
	}
	d.Data = d.Data[:capacity]
	d.DataSize = capacity
	d.state = Init
	d.workingCtr = 0
}

// Clear wipes the payload and working counter and resets state to
// Init, keeping the allocation; Index is left as it is.
func (d *Datagram) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.Data {
		d.Data[i] = 0
	}
	d.workingCtr = 0
	d.state = Init
}

// Zero zeroes the payload only, leaving state untouched — used before
// enqueueing a read-type datagram so stale data is never mistaken for
// a reply.
func (d *Datagram) Zero() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.Data {
		d.Data[i] = 0
	}
}

// State returns the current lifecycle state.
func (d *Datagram) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// setState is called by Queue's Enqueue/Mark* methods; it does not
// take d.mu itself since every caller already holds d.mu.
func (d *Datagram) setState(s State) { d.state = s }

// WorkingCounter returns the working counter recorded by the last RX
// match, or zero if the Datagram never reached Received.
func (d *Datagram) WorkingCounter() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.workingCtr
}

func (d *Datagram) setWorkingCounter(wc uint16) { d.workingCtr = wc }

// Waiter returns (creating if necessary) the completion channel a
// blocking QueueExtDatagram caller waits on. Buffered by one so the
// signaling side never blocks even if the waiter already gave up.
func (d *Datagram) Waiter() chan error {
	if d.waiter == nil {
		d.waiter = make(chan error, 1)
	}
	return d.waiter
}

// Signal delivers err to the waiter channel, if one was requested.
func (d *Datagram) Signal(err error) {
	if d.waiter != nil {
		select {
		case d.waiter <- err:
		default:
		}
	}
}
