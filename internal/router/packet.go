package router

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire layout constants.
const (
	// HeaderSize is the fixed size, in bytes, of the header shared by DATA,
	// DV and CONTROL packets.
	HeaderSize = 12

	// MaxPacketSize bounds the size of any packet handed to Handle.
	MaxPacketSize = 16 * 1024

	// dvEntrySize is the wire size of one distance-vector route entry.
	dvEntrySize = 12
)

// PacketType identifies the wire format carried after the header.
type PacketType uint8

const (
	TypeDV      PacketType = 0x00
	TypeData    PacketType = 0x01
	TypeControl PacketType = 0x02
)

var typeNames = map[PacketType]string{
	TypeDV:      "DV",
	TypeData:    "DATA",
	TypeControl: "CONTROL",
}

func (t PacketType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// Sentinel errors for the header codec.
var (
	ErrPacketTooShort = errors.New("packet shorter than header size")
	ErrBufTooSmall    = errors.New("buffer too small to encode header")
)

// Header is the decoded form of the 12-byte header shared by every packet
// type. Src and Dst travel big-endian on the wire; Length deliberately does
// not — see DecodeHeader.
type Header struct {
	Src    uint32
	Dst    uint32
	Type   PacketType
	Length uint16
}

// DecodeHeader reads the 12-byte header from the front of buf.
//
// Src and Dst are big-endian on the wire and are byte-swapped into host
// order here. Length is read directly in host byte order: unlike Src/Dst it
// is never swapped, an intentional wire quirk preserved for bit-compatibility
// with the protocol this engine speaks.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("decode header: %w", ErrPacketTooShort)
	}
	return Header{
		Src:    binary.BigEndian.Uint32(buf[0:4]),
		Dst:    binary.BigEndian.Uint32(buf[4:8]),
		Type:   PacketType(buf[8]),
		Length: binary.NativeEndian.Uint16(buf[9:11]),
	}, nil
}

// EncodeHeader writes h into the front of buf. See DecodeHeader for the
// Length endianness quirk.
func EncodeHeader(buf []byte, h Header) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("encode header: %w", ErrBufTooSmall)
	}
	binary.BigEndian.PutUint32(buf[0:4], h.Src)
	binary.BigEndian.PutUint32(buf[4:8], h.Dst)
	buf[8] = uint8(h.Type)
	binary.NativeEndian.PutUint16(buf[9:11], h.Length)
	buf[11] = 0
	return nil
}

// dvEntry is the wire form of one distance-vector route advertisement.
// Unlike the header, entries are little-endian end to end.
type dvEntry struct {
	IP        uint32
	Distance  int32
	NextHopID uint32
}

func decodeDVEntry(buf []byte) dvEntry {
	return dvEntry{
		IP:        binary.LittleEndian.Uint32(buf[0:4]),
		Distance:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		NextHopID: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

func encodeDVEntry(buf []byte, e dvEntry) {
	binary.LittleEndian.PutUint32(buf[0:4], e.IP)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.Distance))
	binary.LittleEndian.PutUint32(buf[8:12], e.NextHopID)
}
