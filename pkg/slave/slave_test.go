package slave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsInInitWithGivenPosition(t *testing.T) {
	s := New(3)
	assert.EqualValues(t, 3, s.Position)
	require.NotNil(t, s.States)
	assert.Equal(t, "INIT", s.States.Current().String())
}

func TestSetArenaAndArenaRoundTrip(t *testing.T) {
	s := New(0)
	s.SetArena(0x1000, 4, 8)

	start, out, in := s.Arena()
	assert.EqualValues(t, 0x1000, start)
	assert.EqualValues(t, 4, out)
	assert.EqualValues(t, 8, in)
}

func TestInvokeCallbackSlicesArenaToThisSlavesRegion(t *testing.T) {
	s := New(0)
	s.SetArena(4, 2, 3)

	arena := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0xFF}

	var gotOutput, gotInput []byte
	s.Callback = func(sl *Slave, output, input []byte) {
		gotOutput = output
		gotInput = input
	}
	s.InvokeCallback(0, arena)

	assert.Equal(t, []byte{0xAA, 0xBB}, gotOutput)
	assert.Equal(t, []byte{0xCC, 0xDD, 0xEE}, gotInput)
}

func TestInvokeCallbackNoopWithoutCallback(t *testing.T) {
	s := New(0)
	s.SetArena(0, 0, 0)
	assert.NotPanics(t, func() {
		s.InvokeCallback(0, nil)
	})
}
