package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// StartByte and EndByte delimit every frame on the wire.
	StartByte = 0x68
	EndByte   = 0x16

	// headerLen covers start, length, recipient, sender, sender type,
	// version and frame type. trailerLen covers CRC and end byte.
	headerLen  = 8
	trailerLen = 2

	// MinFrameLen is an empty-payload frame, MaxFrameLen bounds the
	// length field so a corrupt length cannot stall the scanner.
	MinFrameLen = headerLen + trailerLen
	MaxFrameLen = 1024

	// SenderTypeService is the sender type this service stamps on
	// outgoing frames.
	SenderTypeService = 0x30

	// ProtocolVersion is the wire protocol version spoken here.
	ProtocolVersion = 0x05
)

// Decode errors. DecodeError wraps one of these with byte-offset context.
var (
	ErrTruncated        = errors.New("protocol: truncated frame")
	ErrInvalidStart     = errors.New("protocol: invalid start delimiter")
	ErrInvalidEnd       = errors.New("protocol: invalid end delimiter")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrLengthOutOfRange = errors.New("protocol: frame length out of range")
	ErrPayloadTooLarge  = errors.New("protocol: payload too large")
)

// Frame is a single decoded protocol frame.
type Frame struct {
	Recipient  Address
	Sender     Address
	SenderType byte
	Version    byte
	Type       FrameType
	Payload    []byte
}

// NewRequest builds a request frame addressed from this service to the
// given recipient.
func NewRequest(recipient Address, typ FrameType, payload []byte) *Frame {
	return &Frame{
		Recipient:  recipient,
		Sender:     AddressEcoNet,
		SenderType: SenderTypeService,
		Version:    ProtocolVersion,
		Type:       typ,
		Payload:    payload,
	}
}

// Length returns the total encoded size of the frame in bytes.
func (f *Frame) Length() int {
	return headerLen + len(f.Payload) + trailerLen
}

// Encode serialises the frame to wire format.
func (f *Frame) Encode() ([]byte, error) {
	total := f.Length()
	if total > MaxFrameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}

	buf := make([]byte, total)
	buf[0] = StartByte
	binary.LittleEndian.PutUint16(buf[1:3], uint16(total))
	buf[3] = byte(f.Recipient)
	buf[4] = byte(f.Sender)
	buf[5] = f.SenderType
	buf[6] = f.Version
	buf[7] = byte(f.Type)
	copy(buf[headerLen:], f.Payload)
	buf[total-2] = checksum(buf[:total-2])
	buf[total-1] = EndByte
	return buf, nil
}

// Decode parses a single frame from the beginning of b. It returns the
// decoded frame and the number of bytes it occupies. The payload is copied
// out of b, so b may be reused after Decode returns.
func Decode(b []byte) (*Frame, int, error) {
	if len(b) < MinFrameLen {
		return nil, 0, ErrTruncated
	}
	if b[0] != StartByte {
		return nil, 0, ErrInvalidStart
	}

	total := int(binary.LittleEndian.Uint16(b[1:3]))
	if total < MinFrameLen || total > MaxFrameLen {
		return nil, 0, fmt.Errorf("%w: %d", ErrLengthOutOfRange, total)
	}
	if len(b) < total {
		return nil, 0, ErrTruncated
	}
	if b[total-1] != EndByte {
		return nil, 0, ErrInvalidEnd
	}
	if got, want := checksum(b[:total-2]), b[total-2]; got != want {
		return nil, 0, fmt.Errorf("%w: computed 0x%02X, frame carries 0x%02X",
			ErrChecksumMismatch, got, want)
	}

	payload := make([]byte, total-MinFrameLen)
	copy(payload, b[headerLen:total-trailerLen])

	return &Frame{
		Recipient:  Address(b[3]),
		Sender:     Address(b[4]),
		SenderType: b[5],
		Version:    b[6],
		Type:       FrameType(b[7]),
		Payload:    payload,
	}, total, nil
}

// checksum is the XOR of all bytes before the CRC position.
func checksum(b []byte) byte {
	var c byte
	for _, v := range b {
		c ^= v
	}
	return c
}

// Scanner extracts frames from a byte stream, resynchronising on the next
// start delimiter after corrupt input. It is not safe for concurrent use.
type Scanner struct {
	r       io.Reader
	buf     []byte
	tmp     []byte
	dropped uint64
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:   r,
		tmp: make([]byte, 512),
	}
}

// Dropped returns the number of corrupt frames discarded so far.
func (s *Scanner) Dropped() uint64 {
	return s.dropped
}

// Next returns the next valid frame from the stream. Corrupt frames are
// skipped silently (counted in Dropped); only transport read errors are
// returned.
func (s *Scanner) Next() (*Frame, error) {
	for {
		if f, ok := s.extract(); ok {
			return f, nil
		}

		n, err := s.r.Read(s.tmp)
		if n > 0 {
			s.buf = append(s.buf, s.tmp[:n]...)
		}
		if err != nil {
			// Drain what arrived with the error before surfacing it.
			if f, ok := s.extract(); ok {
				return f, nil
			}
			return nil, err
		}
	}
}

// extract attempts to decode one frame from the buffered bytes. It skips
// leading garbage and, on a corrupt frame, discards its start byte so the
// next pass rescans from the following byte.
func (s *Scanner) extract() (*Frame, bool) {
	for {
		// Discard everything before the next start delimiter.
		i := 0
		for i < len(s.buf) && s.buf[i] != StartByte {
			i++
		}
		if i > 0 {
			s.buf = s.buf[i:]
		}
		if len(s.buf) < MinFrameLen {
			return nil, false
		}

		f, n, err := Decode(s.buf)
		switch {
		case err == nil:
			s.buf = s.buf[n:]
			return f, true
		case errors.Is(err, ErrTruncated):
			return nil, false
		default:
			// Corrupt frame. Skip its start byte and rescan.
			s.dropped++
			s.buf = s.buf[1:]
		}
	}
}
