package lib

import (
	"encoding/binary"
	"fmt"
	"log"

	rp "github.com/Clouded-Sabre/ringpool/lib"
)

// SegmentType is the one-byte type tag driving the state machine.
type SegmentType uint8

const (
	TypeSYN SegmentType = iota
	TypeSYNACK
	TypeACK
	TypeDATA
	TypeCLOSE
)

func (t SegmentType) String() string {
	switch t {
	case TypeSYN:
		return "SYN"
	case TypeSYNACK:
		return "SYNACK"
	case TypeACK:
		return "ACK"
	case TypeDATA:
		return "DATA"
	case TypeCLOSE:
		return "CLOSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Segment represents one protocol transmission unit: a fixed header followed
// by up to MaxDataSize payload bytes. Only DATA segments carry payload. The
// codec is a pure transform; it does not validate the type tag, that is the
// state machine's responsibility.
type Segment struct {
	SequenceNumber uint32      // SEQ of this segment (outbound DATA counter)
	AckNumber      uint32      // SEQ being acknowledged
	Type           SegmentType // segment type tag
	Payload        []byte      // payload bytes, backed by a pool chunk
	chunk          *rp.Element // memory chunk holding the payload, nil when empty
}

// NewSegment builds a segment, copying data into a payload chunk from the
// pool when data is non-empty.
func NewSegment(seqNum, ackNum uint32, segType SegmentType, data []byte) (*Segment, error) {
	seg := &Segment{
		SequenceNumber: seqNum,
		AckNumber:      ackNum,
		Type:           segType,
	}
	if len(data) > 0 {
		if err := seg.CopyToPayload(data); err != nil {
			return nil, fmt.Errorf("NewSegment: %w", err)
		}
	}
	return seg, nil
}

// Marshal writes the segment's wire form into buffer and returns the number
// of bytes written. Numeric header fields are laid out in network byte
// order.
func (s *Segment) Marshal(buffer []byte) (int, error) {
	frameLength := HeaderSize + len(s.Payload)
	if frameLength > len(buffer) {
		return 0, fmt.Errorf("buffer size (%d) is too small to hold the frame (%d)", len(buffer), frameLength)
	}

	binary.BigEndian.PutUint32(buffer[0:4], s.SequenceNumber)
	binary.BigEndian.PutUint32(buffer[4:8], s.AckNumber)
	buffer[8] = uint8(s.Type)

	if len(s.Payload) > 0 {
		copy(buffer[HeaderSize:], s.Payload)
	}
	return frameLength, nil
}

// Unmarshal parses the wire form in data. Payload bytes, if any, are copied
// into a fresh pool chunk so data may be reused by the caller.
func (s *Segment) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: got %d bytes, header is %d", ErrMalformedSegment, len(data), HeaderSize)
	}
	s.SequenceNumber = binary.BigEndian.Uint32(data[0:4])
	s.AckNumber = binary.BigEndian.Uint32(data[4:8])
	s.Type = SegmentType(data[8])

	if len(data) > HeaderSize {
		if err := s.CopyToPayload(data[HeaderSize:]); err != nil {
			return fmt.Errorf("segment unmarshal: error copying payload - %w", err)
		}
	} else {
		s.Payload = nil
	}
	return nil
}

// CopyToPayload copies src into a payload chunk taken from the pool.
func (s *Segment) CopyToPayload(src []byte) error {
	if len(src) == 0 {
		return fmt.Errorf("s.CopyToPayload: source slice is empty")
	}
	if len(src) > MaxDataSize {
		return fmt.Errorf("s.CopyToPayload: payload length (%d) exceeds MaxDataSize (%d)", len(src), MaxDataSize)
	}
	s.getChunk()
	if s.chunk == nil {
		err := fmt.Errorf("s.CopyToPayload: got a nil chunk")
		log.Println(err)
		return err
	}
	if err := s.chunk.Data.(*Payload).Copy(src); err != nil {
		s.ReturnChunk()
		return fmt.Errorf("segment.CopyToPayload: %w", err)
	}
	s.Payload = s.chunk.Data.(*Payload).GetSlice()
	return nil
}

// ReturnChunk hands the payload chunk back to the pool once the segment is
// acknowledged or its payload has been delivered.
func (s *Segment) ReturnChunk() {
	if s.chunk != nil {
		Pool.ReturnElement(s.chunk)
		s.chunk = nil
		s.Payload = nil
	}
}

func (s *Segment) getChunk() {
	s.chunk = Pool.GetElement()
}
