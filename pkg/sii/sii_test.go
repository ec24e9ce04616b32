package sii

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/netfieldbus/goethercat"
	"github.com/netfieldbus/goethercat/pkg/master"
	"github.com/netfieldbus/goethercat/pkg/netdev"
)

// newScriptedDevice answers every EEPROM data-register read with
// words[addr], where addr is the word address last written to the
// address register, and accepts control/address writes with WC=1.
func newScriptedDevice(t *testing.T, words map[uint16]uint16) (*master.Master, *netdev.Virtual) {
	t.Helper()
	dev := netdev.NewVirtual("eth0")
	dev.Loopback = true

	var lastAddr uint16
	dev.Responder = func(frame []byte) []byte {
		areaLen, _ := ethercat.FrameHeader(frame)
		hdr := ethercat.ParseDatagramHeader(frame[ethercat.FrameHeaderSize:])
		payloadStart := ethercat.FrameHeaderSize + ethercat.DatagramHeaderSize

		// Fixed addressing: station in the low word, register offset in
		// the high word.
		switch uint16(hdr.Address >> 16) {
		case regAddress:
			lastAddr = binary.LittleEndian.Uint16(frame[payloadStart : payloadStart+2])
		case regControlStatus:
			// busy bit never set; nothing to track.
		case regData:
			val := words[lastAddr]
			binary.LittleEndian.PutUint16(frame[payloadStart:payloadStart+2], val)
		}
		wcOff := ethercat.FrameHeaderSize + areaLen - ethercat.WorkingCounterSize
		frame[wcOff] = 1
		frame[wcOff+1] = 0
		return frame
	}

	logger := logrus.New()
	// A long cycle time keeps the periodic task from ever ticking
	// during the test, so only the non-periodic task (woken by
	// QueueExtDatagram) drives the shared virtual net-device.
	m, err := master.New([]netdev.Device{dev}, master.Config{CycleTime: time.Hour}, logger)
	require.NoError(t, err)
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m, dev
}

func TestReadWordReturnsScriptedValue(t *testing.T) {
	m, _ := newScriptedDevice(t, map[uint16]uint16{wordSIIVendorID: 0xBEEF})

	d, err := New(m, 0x1001)
	require.NoError(t, err)

	got, err := d.ReadWord(wordSIIVendorID)
	require.NoError(t, err)
	require.EqualValues(t, 0xBEEF, got)
}

func TestReadIdentityAssemblesDWordsAndDCFlag(t *testing.T) {
	words := map[uint16]uint16{
		wordSIIVendorID:           0x0001,
		wordSIIVendorID + 1:       0x0000,
		wordSIIProductCode:        0x0002,
		wordSIIProductCode + 1:    0x0000,
		wordSIIRevisionNumber:     0x0003,
		wordSIIRevisionNumber + 1: 0x0000,
		wordSIISerialNumber:       0x0004,
		wordSIISerialNumber + 1:   0x0000,
		wordSIIGeneral:            0x0004, // DC-support bit set
	}
	m, _ := newScriptedDevice(t, words)

	d, err := New(m, 0x1001)
	require.NoError(t, err)

	id, err := d.ReadIdentity()
	require.NoError(t, err)
	require.EqualValues(t, 1, id.VendorID)
	require.EqualValues(t, 2, id.ProductCode)
	require.EqualValues(t, 3, id.RevisionNumber)
	require.EqualValues(t, 4, id.SerialNumber)
	require.True(t, id.SupportsDC)
}

func TestNewRejectsNilMaster(t *testing.T) {
	_, err := New(nil, 0x1001)
	require.ErrorIs(t, err, ethercat.ErrInvalidArgument)
}
