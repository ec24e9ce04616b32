package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/netfieldbus/goethercat"
	"github.com/netfieldbus/goethercat/pkg/master"
	"github.com/netfieldbus/goethercat/pkg/netdev"
)

// newTwoSlaveMaster scripts a segment of two slaves: BRD(0,2) answers
// working-counter 2, every APWR address-assignment succeeds (WC=1),
// and every SII word read returns 0 (no vendor/product info, so
// ReadIdentity yields an all-zero identity and slaves stay zeroed).
func newTwoSlaveMaster(t *testing.T) (*master.Master, *netdev.Virtual) {
	t.Helper()
	dev := netdev.NewVirtual("eth0")
	dev.Loopback = true
	dev.Responder = func(frame []byte) []byte {
		areaLen, _ := ethercat.FrameHeader(frame)
		hdr := ethercat.ParseDatagramHeader(frame[ethercat.FrameHeaderSize:])
		wcOff := ethercat.FrameHeaderSize + areaLen - ethercat.WorkingCounterSize
		switch hdr.Command {
		case ethercat.CmdBRD:
			frame[wcOff] = 2
		default:
			frame[wcOff] = 1
		}
		frame[wcOff+1] = 0
		return frame
	}

	logger := logrus.New()
	m, err := master.New([]netdev.Device{dev}, master.Config{CycleTime: time.Hour}, logger)
	require.NoError(t, err)
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m, dev
}

func TestScanCountsAndAddressesEverySlave(t *testing.T) {
	m, _ := newTwoSlaveMaster(t)

	slaves, err := Scan(m, Options{})
	require.NoError(t, err)
	require.Len(t, slaves, 2)
	require.EqualValues(t, 0x1000, slaves[0].StationAddress)
	require.EqualValues(t, 0x1001, slaves[1].StationAddress)
	require.EqualValues(t, 0, slaves[0].Position)
	require.EqualValues(t, -1, slaves[1].Position)
}

func TestScanWithNoRespondersFailsCountStep(t *testing.T) {
	dev := netdev.NewVirtual("eth0")
	dev.Loopback = true
	dev.Responder = func(frame []byte) []byte {
		areaLen, _ := ethercat.FrameHeader(frame)
		wcOff := ethercat.FrameHeaderSize + areaLen - ethercat.WorkingCounterSize
		frame[wcOff] = 0
		frame[wcOff+1] = 0
		return frame
	}
	logger := logrus.New()
	m, err := master.New([]netdev.Device{dev}, master.Config{CycleTime: time.Hour}, logger)
	require.NoError(t, err)
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { _ = m.Close() })

	// BRD(0,2) with WC==0 means nothing answered; countSlaves surfaces
	// this as ErrWorkingCounter rather than treating it as "zero
	// slaves" silently.
	_, err = Scan(m, Options{})
	require.ErrorIs(t, err, ethercat.ErrWorkingCounter)
}
