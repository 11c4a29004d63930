package mavlink

import (
	"encoding/binary"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/rfdlink/crc"
)

type Version byte

const (
	V1 Version = 1
	V2 Version = 2
)

const (
	MagicV1 byte = 0xfe
	MagicV2 byte = 0xfd

	HeaderSizeV1  = 6  // magic..msgid
	HeaderSizeV2  = 10 // magic..msgid
	ChecksumSize  = 2
	SignatureSize = 13
	MaxPayload    = 255

	IncompatSigned byte = 0x01
)

var (
	ErrFrameInvalid    = fmt.Errorf("frame is invalid")
	ErrPayloadOverflow = fmt.Errorf("payload is too large")
	ErrMessageIDRange  = fmt.Errorf("message id does not fit MAVLink v1")
)

type Frame struct {
	Version  Version
	Incompat byte
	Compat   byte
	Seq      byte
	SysID    byte
	CompID   byte
	MsgID    uint32
	Payload  []byte
	Checksum uint16
}

func (f *Frame) String() string {
	return fmt.Sprintf("(v%d seq=%d sys=%d comp=%d msg=%d len=%d)",
		f.Version, f.Seq, f.SysID, f.CompID, f.MsgID, len(f.Payload))
}

func (f *Frame) Signed() bool { return f.Version == V2 && f.Incompat&IncompatSigned != 0 }

// FrameMarshal fills f.Checksum and returns wire bytes.
// Signature is never produced; outgoing v2 frames are unsigned.
func FrameMarshal(f *Frame, crcExtra byte) ([]byte, error) {
	payload := f.Payload
	if len(payload) > MaxPayload {
		return nil, ErrPayloadOverflow
	}
	var b []byte
	switch f.Version {
	case V1:
		if f.MsgID > 0xff {
			return nil, errors.Annotatef(ErrMessageIDRange, "msgid=%d", f.MsgID)
		}
		b = make([]byte, HeaderSizeV1, HeaderSizeV1+len(payload)+ChecksumSize)
		b[0] = MagicV1
		b[1] = byte(len(payload))
		b[2] = f.Seq
		b[3] = f.SysID
		b[4] = f.CompID
		b[5] = byte(f.MsgID)

	case V2:
		payload = truncateZeros(payload)
		b = make([]byte, HeaderSizeV2, HeaderSizeV2+len(payload)+ChecksumSize)
		b[0] = MagicV2
		b[1] = byte(len(payload))
		b[2] = f.Incompat &^ IncompatSigned
		b[3] = f.Compat
		b[4] = f.Seq
		b[5] = f.SysID
		b[6] = f.CompID
		b[7] = byte(f.MsgID)
		b[8] = byte(f.MsgID >> 8)
		b[9] = byte(f.MsgID >> 16)

	default:
		return nil, errors.Errorf("unknown mavlink version=%d", f.Version)
	}
	b = append(b, payload...)
	f.Checksum = frameChecksum(b[1:], crcExtra)
	var sum [ChecksumSize]byte
	binary.LittleEndian.PutUint16(sum[:], f.Checksum)
	return append(b, sum[:]...), nil
}

// frameLength returns total frame size from header bytes, 0 if header is incomplete.
func frameLength(b []byte) int {
	if len(b) < 2 {
		return 0
	}
	plen := int(b[1])
	switch b[0] {
	case MagicV1:
		return HeaderSizeV1 + plen + ChecksumSize
	case MagicV2:
		if len(b) < 3 {
			return 0
		}
		n := HeaderSizeV2 + plen + ChecksumSize
		if b[2]&IncompatSigned != 0 {
			n += SignatureSize
		}
		return n
	}
	return -1
}

// frameUnmarshal parses complete frame without checksum verification (crc extra is unknown here).
func frameUnmarshal(b []byte) (*Frame, error) {
	n := frameLength(b)
	if n <= 0 || len(b) < n {
		return nil, ErrFrameInvalid
	}
	f := &Frame{}
	var hsize int
	switch b[0] {
	case MagicV1:
		f.Version = V1
		f.Seq, f.SysID, f.CompID = b[2], b[3], b[4]
		f.MsgID = uint32(b[5])
		hsize = HeaderSizeV1
	case MagicV2:
		f.Version = V2
		f.Incompat, f.Compat = b[2], b[3]
		f.Seq, f.SysID, f.CompID = b[4], b[5], b[6]
		f.MsgID = uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16
		hsize = HeaderSizeV2
	}
	plen := int(b[1])
	f.Payload = append([]byte(nil), b[hsize:hsize+plen]...)
	f.Checksum = binary.LittleEndian.Uint16(b[hsize+plen:])
	return f, nil
}

func frameChecksum(headerAndPayload []byte, crcExtra byte) uint16 {
	sum := crc.X25Bytes(crc.X25Init, headerAndPayload)
	return crc.X25Accumulate(sum, crcExtra)
}

func truncateZeros(p []byte) []byte {
	n := len(p)
	for n > 1 && p[n-1] == 0 {
		n--
	}
	return p[:n]
}
