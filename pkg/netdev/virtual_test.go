package netdev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualLoopbackDeliversToReceiver(t *testing.T) {
	v := NewVirtual("eth0")
	v.Loopback = true

	var got []byte
	v.SetReceiver(func(frame []byte) { got = frame })

	copy(v.GetTxBuffer(), []byte{1, 2, 3, 4})
	require.NoError(t, v.Send(4))

	assert.Equal(t, []byte{1, 2, 3, 4}, got)
	stats := v.Stats()
	assert.EqualValues(t, 1, stats.TxCount)
	assert.EqualValues(t, 1, stats.RxCount)
}

func TestVirtualNoLoopbackRequiresExplicitInject(t *testing.T) {
	v := NewVirtual("eth0")

	var got []byte
	v.SetReceiver(func(frame []byte) { got = frame })

	copy(v.GetTxBuffer(), []byte{9, 9})
	require.NoError(t, v.Send(2))
	assert.Nil(t, got)

	v.Inject([]byte{7, 7})
	assert.Equal(t, []byte{7, 7}, got)
}

func TestVirtualLinkDownFailsSendWithoutError(t *testing.T) {
	v := NewVirtual("eth0")
	v.SetLinkUp(false)
	assert.False(t, v.LinkUp())
	assert.False(t, v.PollLink())

	require.NoError(t, v.Send(4))
	stats := v.Stats()
	assert.EqualValues(t, 0, stats.TxCount)
}
