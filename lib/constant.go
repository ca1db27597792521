package lib

import "time"

const (
	// MaxSegmentSize bounds any single transmission unit on the wire.
	MaxSegmentSize = 1400
	// HeaderSize is the fixed wire size of a segment header:
	// 4-byte sequence number, 4-byte ack number, 1-byte type tag.
	HeaderSize = 9
	// MaxDataSize is the maximum payload a DATA segment may carry.
	MaxDataSize = MaxSegmentSize - HeaderSize
)

// Defaults used when no configuration is supplied. TIME_WAIT absorbs delayed
// peer retransmissions of CLOSE before the channel is released.
const (
	DefaultEstimatedRTT    = 100 * time.Millisecond
	DefaultDevRTT          = 10 * time.Millisecond
	DefaultMinRTO          = 1 * time.Millisecond
	DefaultTimeWait        = 4000 * time.Millisecond
	DefaultPayloadPoolSize = 2000
)
