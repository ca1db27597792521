package lib

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrMalformedSegment is returned when a received buffer is too short
	// to hold a segment header.
	ErrMalformedSegment = errors.New("segment is too short to be unmarshalled")

	// ErrInvalidState is returned when an operation is invoked in a
	// connection state that forbids it. The peer is never contacted.
	ErrInvalidState = errors.New("operation not permitted in current connection state")

	// ErrProtocolViolation is returned when a segment of an unexpected
	// type arrives at a point where the state machine has a strict
	// expectation, e.g. a non-SYN segment during passive open.
	ErrProtocolViolation = errors.New("unexpected segment type")

	// ErrEmptyPayload is returned by SendData for a zero-length payload.
	// A header-only DATA segment would arrive as an empty delivery, which
	// the receiver cannot tell apart from the end-of-stream signal.
	ErrEmptyPayload = errors.New("payload must not be empty")
)

// ChannelError wraps a transmit or receive failure that is not attributable
// to a timeout. It is unrecoverable and terminates the operation that hit
// it; the reliable-send engine never retries it.
type ChannelError struct {
	Op  string // "send", "receive", "listen", ...
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// TimeoutError satisfies net.Error so in-memory channels report timeouts
// the same way a real socket does.
type TimeoutError struct {
	msg string
}

func (e *TimeoutError) Error() string {
	return e.msg
}

func (e *TimeoutError) Timeout() bool {
	return true
}

func (e *TimeoutError) Temporary() bool {
	return false
}

// isTimeout reports whether err is a receive timeout rather than a real
// channel failure. Timeouts are the expected retry trigger, never errors.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
