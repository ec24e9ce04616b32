// Package slave defines the per-slave bookkeeping the master's core
// consumes: addressing, PDO arena placement and the callback invoked
// each cycle with pointers into the process-data arena. Population
// (scanning, SII read, sync-info lookup) is an external collaborator
// per the core's design; this package only holds the resulting state.
package slave

import (
	"sync"

	"github.com/netfieldbus/goethercat/pkg/state"
	"github.com/netfieldbus/goethercat/pkg/synctable"
)

// BaseDCRange selects whether a slave's system-time registers are
// 32-bit or 64-bit wide.
type BaseDCRange uint8

const (
	DCRange32 BaseDCRange = 32
	DCRange64 BaseDCRange = 64
)

// PDOCallback is invoked once per received PDO cycle, from the
// master's periodic task holding no master lock, with pointers into the PDO arena for this slave's output
// and input regions. Implementations must be real-time safe and must
// not re-enter master APIs except QueueExtDatagram with wait=false.
type PDOCallback func(s *Slave, output, input []byte)

// Slave is one discovered EtherCAT device on the segment.
type Slave struct {
	mu sync.Mutex

	Position        int16  // ring position assigned during scan (negative, auto-increment addressing)
	StationAddress  uint16 // fixed address assigned by the scanner
	Vendor          uint32
	Product         uint32
	Revision        uint32
	SerialNumber    uint32

	States *state.Machine

	LogicalStartAddress uint32
	OutputSize          uint16 // odata_size
	InputSize           uint16 // idata_size

	ExpectedWorkingCounter uint16
	TransmissionDelayNS    uint32
	BaseDCRange            BaseDCRange
	HasDC                  bool

	SyncInfo synctable.SyncInfo

	Callback PDOCallback
}

// New returns a Slave at the given ring position, state machine
// starting in Init.
func New(position int16) *Slave {
	return &Slave{
		Position: position,
		States:   state.New(),
	}
}

// SetArena records this slave's placement and size in the PDO arena,
// computed by the master during Start under scan_lock.
func (s *Slave) SetArena(logicalStart uint32, outputSize, inputSize uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LogicalStartAddress = logicalStart
	s.OutputSize = outputSize
	s.InputSize = inputSize
}

// Arena returns this slave's current PDO arena placement.
func (s *Slave) Arena() (logicalStart uint32, outputSize, inputSize uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LogicalStartAddress, s.OutputSize, s.InputSize
}

// InvokeCallback calls the configured PDOCallback, if any, with
// pointers into arena sliced to this slave's output/input regions.
// arena is the full LRW buffer shared across slaves in single-domain
// mode, or this slave's own buffer in multi-domain mode.
func (s *Slave) InvokeCallback(arenaBase uint32, arena []byte) {
	if s.Callback == nil {
		return
	}
	off := s.LogicalStartAddress - arenaBase
	output := arena[off : off+uint32(s.OutputSize)]
	input := arena[off+uint32(s.OutputSize) : off+uint32(s.OutputSize)+uint32(s.InputSize)]
	s.Callback(s, output, input)
}
