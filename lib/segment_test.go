package lib

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestSegmentRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		seqNum  uint32
		ackNum  uint32
		segType SegmentType
		payload []byte
	}{
		{name: "syn", seqNum: 0, ackNum: 0, segType: TypeSYN},
		{name: "synack", seqNum: 0, ackNum: 0, segType: TypeSYNACK},
		{name: "ack", seqNum: 7, ackNum: 7, segType: TypeACK},
		{name: "data", seqNum: 42, ackNum: 0, segType: TypeDATA, payload: []byte("hello, world")},
		{name: "data max payload", seqNum: 4294967295, ackNum: 1, segType: TypeDATA, payload: bytes.Repeat([]byte{0xab}, MaxDataSize)},
		{name: "close", seqNum: 0, ackNum: 0, segType: TypeCLOSE},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			original, err := NewSegment(tc.seqNum, tc.ackNum, tc.segType, tc.payload)
			if err != nil {
				t.Fatalf("NewSegment: %v", err)
			}
			defer original.ReturnChunk()

			buf := make([]byte, MaxSegmentSize)
			n, err := original.Marshal(buf)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if want := HeaderSize + len(tc.payload); n != want {
				t.Errorf("Marshal wrote %d bytes, want %d", n, want)
			}

			decoded := &Segment{}
			if err := decoded.Unmarshal(buf[:n]); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			defer decoded.ReturnChunk()

			if diff := cmp.Diff(original, decoded, cmpopts.IgnoreUnexported(Segment{}), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-sent +received):\n%s", diff)
			}
		})
	}
}

func TestSegmentWireLayout(t *testing.T) {
	seg := mustSegment(0x01020304, 0x05060708, TypeDATA, []byte{0xaa})
	defer seg.ReturnChunk()

	got := marshalSegment(seg)
	want := []byte{
		0x01, 0x02, 0x03, 0x04, // sequence number, network byte order
		0x05, 0x06, 0x07, 0x08, // ack number
		0x03, // DATA type tag
		0xaa, // payload
	}
	if !bytes.Equal(got, want) {
		t.Errorf("wire layout mismatch:\ngot  %x\nwant %x", got, want)
	}
}

func TestUnmarshalTooShort(t *testing.T) {
	for _, n := range []int{0, 1, HeaderSize - 1} {
		seg := &Segment{}
		err := seg.Unmarshal(make([]byte, n))
		if !errors.Is(err, ErrMalformedSegment) {
			t.Errorf("Unmarshal of %d bytes: got %v, want ErrMalformedSegment", n, err)
		}
	}
}

func TestUnmarshalDoesNotValidateType(t *testing.T) {
	// The codec is a pure transform; type-range checking belongs to the
	// state machine.
	buf := make([]byte, HeaderSize)
	buf[8] = 99
	seg := &Segment{}
	if err := seg.Unmarshal(buf); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if seg.Type != SegmentType(99) {
		t.Errorf("Type = %d, want 99", seg.Type)
	}
}

func TestMarshalBufferTooSmall(t *testing.T) {
	seg := mustSegment(1, 0, TypeDATA, []byte("payload"))
	defer seg.ReturnChunk()

	if _, err := seg.Marshal(make([]byte, HeaderSize)); err == nil {
		t.Error("Marshal into undersized buffer succeeded, want error")
	}
}

func TestPayloadTooLarge(t *testing.T) {
	if _, err := NewSegment(0, 0, TypeDATA, make([]byte, MaxDataSize+1)); err == nil {
		t.Error("NewSegment with oversized payload succeeded, want error")
	}
}
