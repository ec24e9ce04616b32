//go:build linux

package netdev

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/netfieldbus/goethercat"
)

// RawSock is the production Device: an AF_PACKET SOCK_RAW socket
// bound to a named interface, EtherType 0x88A4 (ethercat.EtherType).
// Grounded on the teacher's use of golang.org/x/sys/unix for raw
// socket plumbing.
type RawSock struct {
	mu      sync.Mutex
	name    string
	fd      int
	ifindex int
	srcMAC  net.HardwareAddr
	txBuf   []byte
	stats   statsTracker

	receiver func(frame []byte)
	closeCh  chan struct{}
	wg       sync.WaitGroup
}

// NewRawSock opens an AF_PACKET socket bound to ifaceName, filtered
// to ethercat.EtherType, and starts the background receive loop.
func NewRawSock(ifaceName string) (*RawSock, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("netdev: %s: %w", ifaceName, err)
	}

	proto := htons(ethercat.EtherType)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, fmt.Errorf("netdev: socket: %w", err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("netdev: bind %s: %w", ifaceName, err)
	}

	r := &RawSock{
		name:    ifaceName,
		fd:      fd,
		ifindex: iface.Index,
		srcMAC:  iface.HardwareAddr,
		// +14 for the Ethernet header the packer never writes itself
		// at this layer but this buffer must still hold.
		txBuf:   make([]byte, ethercat.EthernetMTU+14),
		closeCh: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.receiveLoop()
	return r, nil
}

func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.LittleEndian.Uint16(b[:])
}

func (r *RawSock) Name() string { return r.name }

// GetTxBuffer returns the region following the 14-byte Ethernet
// header; the header itself is stamped by Send once the caller
// reports the payload size, so the EtherCAT frame header the packer
// writes always lands at offset 14 of the wire frame.
func (r *RawSock) GetTxBuffer() []byte {
	return r.txBuf[14:]
}

func (r *RawSock) Send(sizePayload int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 14 + sizePayload
	if total < ethercat.MinFrameSize {
		total = ethercat.MinFrameSize
		for i := 14 + sizePayload; i < total; i++ {
			r.txBuf[i] = 0
		}
	}
	// broadcast destination, our MAC as source, EtherCAT EtherType.
	copy(r.txBuf[0:6], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	copy(r.txBuf[6:12], r.srcMAC)
	binary.BigEndian.PutUint16(r.txBuf[12:14], ethercat.EtherType)

	addr := unix.SockaddrLinklayer{
		Protocol: htons(ethercat.EtherType),
		Ifindex:  r.ifindex,
		Halen:    6,
	}
	copy(addr.Addr[:6], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

	if err := unix.Sendto(r.fd, r.txBuf[:total], 0, &addr); err != nil {
		r.stats.addTxError()
		return fmt.Errorf("netdev: sendto %s: %w", r.name, err)
	}
	r.stats.addTx(total)
	r.stats.update(time.Now().UnixNano())
	return nil
}

func (r *RawSock) receiveLoop() {
	defer r.wg.Done()
	buf := make([]byte, ethercat.EthernetMTU+14)
	for {
		select {
		case <-r.closeCh:
			return
		default:
		}
		n, _, err := unix.Recvfrom(r.fd, buf, 0)
		if err != nil {
			continue
		}
		if n < 14 {
			continue
		}
		r.stats.addRx(n)
		r.stats.update(time.Now().UnixNano())
		r.mu.Lock()
		recv := r.receiver
		r.mu.Unlock()
		if recv != nil {
			frame := make([]byte, n-14)
			copy(frame, buf[14:n])
			recv(frame)
		}
	}
}

func (r *RawSock) PollLink() bool {
	iface, err := net.InterfaceByIndex(r.ifindex)
	if err != nil {
		return false
	}
	return iface.Flags&net.FlagUp != 0
}

func (r *RawSock) LinkUp() bool { return r.PollLink() }

func (r *RawSock) Stats() Stats { return r.stats.snapshot() }

func (r *RawSock) SetReceiver(fn func(frame []byte)) {
	r.mu.Lock()
	r.receiver = fn
	r.mu.Unlock()
}

func (r *RawSock) Close() error {
	close(r.closeCh)
	err := unix.Close(r.fd)
	r.wg.Wait()
	return err
}
