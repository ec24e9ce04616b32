package ethercat

import "encoding/binary"

// EtherType registered for EtherCAT frames, carried directly after the
// 14-byte Ethernet header (which this package never touches — that is
// pkg/netdev's job).
const EtherType = 0x88A4

// Wire-format limits. The EtherCAT frame header's length field is
// 11 bits, so a single datagram's payload can never exceed 2047 bytes;
// the Ethernet MTU bounds how much datagram area fits in one frame.
const (
	EthernetMTU         = 1500
	MinFrameSize        = 60
	FrameHeaderSize     = 2
	DatagramHeaderSize  = 10
	WorkingCounterSize  = 2
	MaxDatagramDataSize = 2047
)

// FrameHeaderType identifies the payload area following the 2-byte
// frame header as EtherCAT datagrams (the only type this master emits
// or understands).
const FrameHeaderType = 0x1

// Command identifies an EtherCAT datagram's addressing mode.
type Command uint8

// Datagram commands. Only the subset this master issues is named;
// unsupported commands a reply might carry are never matched.
const (
	CmdNOP  Command = 0x00
	CmdAPRD Command = 0x01 // auto-increment position read
	CmdAPWR Command = 0x02 // auto-increment position write
	CmdAPRW Command = 0x03
	CmdFPRD Command = 0x04 // configured-address read
	CmdFPWR Command = 0x05 // configured-address write
	CmdFPRW Command = 0x06
	CmdBRD  Command = 0x07 // broadcast read
	CmdBWR  Command = 0x08 // broadcast write
	CmdBRW  Command = 0x09
	CmdLRD  Command = 0x0A // logical read
	CmdLWR  Command = 0x0B // logical write
	CmdLRW  Command = 0x0C // logical read/write (PDO workhorse)
	CmdARMW Command = 0x0D
	CmdFRMW Command = 0x0E
)

// IsReadCommand reports whether a reply's payload should be copied
// back into the originating datagram's buffer. Write-only commands
// (APWR, FPWR, BWR, LWR) never echo slave-owned data.
func IsReadCommand(c Command) bool {
	switch c {
	case CmdAPWR, CmdFPWR, CmdBWR, CmdLWR:
		return false
	default:
		return true
	}
}

// PutFrameHeader writes the 2-byte little-endian EtherCAT frame
// header: len[0:11] | reserved[11] | type[12:15], reserved always
// zero on the wire this master emits.
func PutFrameHeader(buf []byte, datagramAreaLen int) {
	word := uint16(datagramAreaLen&0x7FF) | (uint16(FrameHeaderType) << 12)
	binary.LittleEndian.PutUint16(buf, word)
}

// FrameHeader decodes a 2-byte frame header into its datagram-area
// length and type nibble.
func FrameHeader(buf []byte) (length int, typ uint8) {
	word := binary.LittleEndian.Uint16(buf)
	return int(word & 0x7FF), uint8(word>>12) & 0xF
}

// DatagramHeader is the decoded form of the 10-byte per-datagram
// header preceding its payload.
type DatagramHeader struct {
	Command     Command
	Index       uint8
	Address     uint32
	Length      int
	MoreFollows bool
	IRQ         uint16
}

// PutDatagramHeader serializes h into the first 10 bytes of buf.
// more is written into bit 15 of the length/flags word; flags (bits
// 11-14) are always zero — this master never sets them.
func PutDatagramHeader(buf []byte, h DatagramHeader) {
	buf[0] = byte(h.Command)
	buf[1] = h.Index
	binary.LittleEndian.PutUint32(buf[2:6], h.Address)
	word := uint16(h.Length & 0x7FF)
	if h.MoreFollows {
		word |= 1 << 15
	}
	binary.LittleEndian.PutUint16(buf[6:8], word)
	binary.LittleEndian.PutUint16(buf[8:10], h.IRQ)
}

// SetMoreFollows flips on the "more follows" bit of an already-written
// datagram header in place, used by the frame packer when a
// subsequent datagram is appended after this one.
func SetMoreFollows(buf []byte) {
	word := binary.LittleEndian.Uint16(buf[6:8])
	word |= 1 << 15
	binary.LittleEndian.PutUint16(buf[6:8], word)
}

// ParseDatagramHeader decodes the 10-byte header at the start of buf.
func ParseDatagramHeader(buf []byte) DatagramHeader {
	word := binary.LittleEndian.Uint16(buf[6:8])
	return DatagramHeader{
		Command:     Command(buf[0]),
		Index:       buf[1],
		Address:     binary.LittleEndian.Uint32(buf[2:6]),
		Length:      int(word & 0x7FF),
		MoreFollows: word&(1<<15) != 0,
		IRQ:         binary.LittleEndian.Uint16(buf[8:10]),
	}
}

// LogicalAddress packs a 32-bit logical LRW address, the only address
// form CmdLRD/CmdLWR/CmdLRW use.
func LogicalAddress(addr uint32) uint32 { return addr }

// PositionAddress packs an auto-increment (APRD/APWR) address: a
// signed 16-bit ring position in the low word, a 16-bit register
// offset in the high word.
func PositionAddress(position int16, offset uint16) uint32 {
	return uint32(uint16(position)) | uint32(offset)<<16
}

// FixedAddress packs a configured-address (FPRD/FPWR) address: the
// slave's station address in the low word, register offset in the
// high word.
func FixedAddress(station uint16, offset uint16) uint32 {
	return uint32(station) | uint32(offset)<<16
}
