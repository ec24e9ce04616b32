package ethercat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPutFrameHeaderMatchesWireLayout locks in §6's bit-exact layout:
// len[0:11] | reserved[11] | type[12:15], type == 1 for EtherCAT.
func TestPutFrameHeaderMatchesWireLayout(t *testing.T) {
	buf := make([]byte, 2)
	PutFrameHeader(buf, 100)

	word := binary.LittleEndian.Uint16(buf)
	assert.EqualValues(t, 100, word&0x7FF)
	assert.EqualValues(t, 0, (word>>11)&0x1, "reserved bit must stay zero")
	assert.EqualValues(t, 1, (word>>12)&0xF, "type nibble must be 1 for EtherCAT")
	assert.EqualValues(t, 0x1064, word)
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	PutFrameHeader(buf, 0x7FF)

	length, typ := FrameHeader(buf)
	assert.Equal(t, 0x7FF, length)
	assert.EqualValues(t, FrameHeaderType, typ)
}
