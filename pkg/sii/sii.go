// Package sii implements one-shot EEPROM (Slave Information
// Interface) word-addressed read/write access through the master's
// QueueExtDatagram contract, the same one-shot-datagram shape the
// mailbox package uses for CoE/FoE/EoE payloads.
package sii

import (
	"encoding/binary"
	"fmt"

	"github.com/netfieldbus/goethercat"
	"github.com/netfieldbus/goethercat/pkg/datagram"
	"github.com/netfieldbus/goethercat/pkg/master"
)

// SII register offsets within the slave's configured address space
// used to drive the EEPROM control/address/data interface.
const (
	regControlStatus = 0x0502
	regAddress       = 0x0504
	regData          = 0x0508
)

const (
	wordSIIVendorID       = 0x0008
	wordSIIProductCode    = 0x000A
	wordSIIRevisionNumber = 0x000C
	wordSIISerialNumber   = 0x000E
	wordSIIGeneral        = 0x0030 // carries the DC-support flags byte
)

// Device is bound to one slave's fixed station address.
type Device struct {
	m       *master.Master
	station uint16
}

// New returns a Device for SII access to the slave at station.
func New(m *master.Master, station uint16) (*Device, error) {
	if m == nil {
		return nil, ethercat.ErrInvalidArgument
	}
	return &Device{m: m, station: station}, nil
}

// Identity is the subset of the SII "general" area the scanner needs.
type Identity struct {
	VendorID       uint32
	ProductCode    uint32
	RevisionNumber uint32
	SerialNumber   uint32
	SupportsDC     bool
}

// ReadIdentity reads the vendor/product/revision/serial words and the
// DC-support flag from the EEPROM.
func (d *Device) ReadIdentity() (Identity, error) {
	var id Identity
	var err error
	if id.VendorID, err = d.readDWord(wordSIIVendorID); err != nil {
		return Identity{}, err
	}
	if id.ProductCode, err = d.readDWord(wordSIIProductCode); err != nil {
		return Identity{}, err
	}
	if id.RevisionNumber, err = d.readDWord(wordSIIRevisionNumber); err != nil {
		return Identity{}, err
	}
	if id.SerialNumber, err = d.readDWord(wordSIISerialNumber); err != nil {
		return Identity{}, err
	}
	flags, err := d.ReadWord(wordSIIGeneral)
	if err != nil {
		return Identity{}, err
	}
	id.SupportsDC = flags&0x04 != 0
	return id, nil
}

// ReadWord performs one EEPROM word read: write the target address,
// trigger a read, then poll the control/status register until the
// busy bit clears before collecting the data register.
func (d *Device) ReadWord(wordAddr uint16) (uint16, error) {
	addrBuf := make([]byte, 4)
	binary.LittleEndian.PutUint16(addrBuf[0:2], wordAddr)
	if err := d.write(regAddress, addrBuf); err != nil {
		return 0, err
	}
	// Bit 0 of the control/status word triggers a read cycle.
	if err := d.write(regControlStatus, []byte{0x01, 0x00}); err != nil {
		return 0, err
	}

	if err := d.pollBusy(); err != nil {
		return 0, err
	}

	data, err := d.read(regData, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// readDWord reads two consecutive EEPROM words and assembles a
// little-endian 32-bit value.
func (d *Device) readDWord(wordAddr uint16) (uint32, error) {
	lo, err := d.ReadWord(wordAddr)
	if err != nil {
		return 0, err
	}
	hi, err := d.ReadWord(wordAddr + 1)
	if err != nil {
		return 0, err
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

// WriteWord writes one EEPROM word, used by configuration tooling
// (never the hot path).
func (d *Device) WriteWord(wordAddr, value uint16) error {
	addrBuf := make([]byte, 4)
	binary.LittleEndian.PutUint16(addrBuf[0:2], wordAddr)
	if err := d.write(regAddress, addrBuf); err != nil {
		return err
	}
	dataBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(dataBuf, value)
	if err := d.write(regData, dataBuf); err != nil {
		return err
	}
	// Bit 1 triggers a write cycle.
	if err := d.write(regControlStatus, []byte{0x02, 0x00}); err != nil {
		return err
	}
	return d.pollBusy()
}

func (d *Device) pollBusy() error {
	for i := 0; i < 100; i++ {
		status, err := d.read(regControlStatus, 2)
		if err != nil {
			return err
		}
		busy := binary.LittleEndian.Uint16(status)&0x2000 != 0
		if !busy {
			return nil
		}
	}
	return fmt.Errorf("sii: station 0x%x: %w", d.station, ethercat.ErrSII)
}

func (d *Device) read(offset uint16, size int) ([]byte, error) {
	dg := datagram.FPRD(d.station, offset, size)
	if err := d.m.QueueExtDatagram(dg, 0, true, true); err != nil {
		return nil, fmt.Errorf("sii: read 0x%x: %w", offset, err)
	}
	return dg.Data[:dg.DataSize], nil
}

func (d *Device) write(offset uint16, data []byte) error {
	dg := datagram.FPWR(d.station, offset, data)
	if err := d.m.QueueExtDatagram(dg, 0, true, true); err != nil {
		return fmt.Errorf("sii: write 0x%x: %w", offset, err)
	}
	return nil
}
