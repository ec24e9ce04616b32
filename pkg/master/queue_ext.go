package master

import (
	"github.com/netfieldbus/goethercat"
	"github.com/netfieldbus/goethercat/pkg/datagram"
)

// QueueExtDatagram enqueues dg (addressed to netdevIdx, 0 unless the
// collaborator targets the backup link explicitly). If wake, the
// non-periodic task's wait is shortened so the datagram is flushed
// promptly instead of waiting out the full non-periodic interval. If
// wait, QueueExtDatagram blocks on the datagram's completion signal
// and translates the outcome to one of: nil (working counter > 0),
// ErrWorkingCounter (received with WC == 0), ErrTimeout, ErrIO (link
// down), or ErrUnknown. Callable from any task except the periodic
// one, which must never block.
func (m *Master) QueueExtDatagram(dg *datagram.Datagram, netdevIdx int, wake, wait bool) error {
	waiter := dg.Waiter()
	m.Enqueue(dg, netdevIdx)

	if wake {
		m.tasks.wakeNonPeriodic()
	}

	if !wait {
		return nil
	}

	err := <-waiter
	switch {
	case err == nil:
		if dg.State() == datagram.Received && dg.WorkingCounter() == 0 {
			return ethercat.ErrWorkingCounter
		}
		return nil
	case err == ethercat.ErrTimeout:
		return ethercat.ErrTimeout
	case err == ethercat.ErrLinkDown, err == ethercat.ErrIO:
		return ethercat.ErrIO
	default:
		return ethercat.ErrUnknown
	}
}
