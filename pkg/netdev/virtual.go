package netdev

import (
	"sync"
	"time"
)

// Virtual is an in-memory loopback Device for tests: frames handed to
// Send are looped back to the installed receiver (optionally through
// an injector the test controls instead), with no real NIC involved.
// Grounded on the teacher's pkg/can/virtual in-memory bus, simplified
// since tests drive frame injection explicitly rather than over TCP.
type Virtual struct {
	mu       sync.Mutex
	name     string
	linkUp   bool
	txBuf    []byte
	receiver func(frame []byte)
	stats    statsTracker
	now      func() int64

	// Loopback, if true, feeds every Send()'t frame straight back to
	// the receiver (minus nothing — the test harness supplies its own
	// reply bytes via Inject instead when it needs a different
	// answer than an echo).
	Loopback bool

	// Responder, if set, replaces the echoed frame with its return
	// value before delivery to the receiver — tests simulating a
	// real slave's reply (working counter, payload) use this instead
	// of a bare echo.
	Responder func(frame []byte) []byte
}

// NewVirtual returns a Virtual device, initially link-up.
func NewVirtual(name string) *Virtual {
	return &Virtual{
		name:   name,
		linkUp: true,
		txBuf:  make([]byte, 1514),
		now:    func() int64 { return time.Now().UnixNano() },
	}
}

func (v *Virtual) Name() string { return v.name }

func (v *Virtual) GetTxBuffer() []byte { return v.txBuf }

func (v *Virtual) Send(sizePayload int) error {
	v.mu.Lock()
	up := v.linkUp
	v.mu.Unlock()
	if !up {
		v.stats.addTxError()
		return nil
	}
	frame := make([]byte, sizePayload)
	copy(frame, v.txBuf[:sizePayload])
	v.stats.addTx(sizePayload)
	v.stats.update(v.now())
	if v.Loopback {
		if v.Responder != nil {
			frame = v.Responder(frame)
		}
		v.Inject(frame)
	}
	return nil
}

// Inject delivers frame to the installed receiver as if it had
// arrived over the wire, bumping RX stats. Tests use this to supply
// scripted replies.
func (v *Virtual) Inject(frame []byte) {
	v.stats.addRx(len(frame))
	v.stats.update(v.now())
	v.mu.Lock()
	recv := v.receiver
	v.mu.Unlock()
	if recv != nil {
		recv(frame)
	}
}

func (v *Virtual) PollLink() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.linkUp
}

func (v *Virtual) LinkUp() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.linkUp
}

// SetLinkUp lets a test flip the simulated carrier state.
func (v *Virtual) SetLinkUp(up bool) {
	v.mu.Lock()
	v.linkUp = up
	v.mu.Unlock()
}

func (v *Virtual) Stats() Stats { return v.stats.snapshot() }

func (v *Virtual) SetReceiver(fn func(frame []byte)) {
	v.mu.Lock()
	v.receiver = fn
	v.mu.Unlock()
}

func (v *Virtual) Close() error { return nil }
