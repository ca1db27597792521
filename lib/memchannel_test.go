package lib

import (
	"fmt"
	"net"
	"sync"
	"time"
)

func init() {
	initPayloadPool(256, false)
}

// memChannel is an in-memory Channel for tests: two of them joined by a
// pair of buffered Go channels form a perfect datagram link. Timeouts are
// reported through TimeoutError so the engine sees the same three-way
// receive result a real socket produces.
type memChannel struct {
	in      chan []byte
	out     chan []byte
	timeout time.Duration

	mu        sync.Mutex
	sendCount int
	closed    bool
}

// newMemChannelPair returns two channels wired back to back.
func newMemChannelPair() (*memChannel, *memChannel) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a := &memChannel{in: ba, out: ab}
	b := &memChannel{in: ab, out: ba}
	return a, b
}

func (c *memChannel) Open() error               { return nil }
func (c *memChannel) Listen(port int) error     { return nil }
func (c *memChannel) BindToPeer(net.Addr) error { return nil }

func (c *memChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &ChannelError{Op: "send", Err: fmt.Errorf("channel is closed")}
	}
	c.sendCount++
	// The engine reuses its send buffer, so the datagram must be copied.
	cp := make([]byte, len(data))
	copy(cp, data)
	c.out <- cp
	return nil
}

func (c *memChannel) Receive(buf []byte) (int, error) {
	if c.timeout <= 0 {
		data := <-c.in
		return copy(buf, data), nil
	}
	select {
	case data := <-c.in:
		return copy(buf, data), nil
	case <-time.After(c.timeout):
		return 0, &TimeoutError{msg: "receive timed out"}
	}
}

func (c *memChannel) SetReceiveTimeout(d time.Duration) error {
	c.timeout = d
	return nil
}

func (c *memChannel) WaitForAnySender(buf []byte) (int, net.Addr, error) {
	data := <-c.in
	return copy(buf, data), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, nil
}

func (c *memChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *memChannel) sends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCount
}

// lossyChannel wraps a Channel and drops outbound datagrams whose send
// index (0-based) is in the drop set.
type lossyChannel struct {
	Channel
	mu    sync.Mutex
	index int
	drops map[int]bool
}

func newLossyChannel(inner Channel, drops ...int) *lossyChannel {
	dropSet := make(map[int]bool)
	for _, d := range drops {
		dropSet[d] = true
	}
	return &lossyChannel{Channel: inner, drops: dropSet}
}

func (c *lossyChannel) Send(data []byte) error {
	c.mu.Lock()
	drop := c.drops[c.index]
	c.index++
	c.mu.Unlock()
	if drop {
		return nil // swallowed by the lossy link
	}
	return c.Channel.Send(data)
}

// erroringChannel fails every operation with a non-timeout error.
type erroringChannel struct {
	memChannel
}

func (c *erroringChannel) Send(data []byte) error {
	return fmt.Errorf("network is down")
}

// testConfig keeps timeouts short so retransmission paths run quickly.
func testConfig() *ConnectionConfig {
	return &ConnectionConfig{
		InitialEstimatedRTT: 20 * time.Millisecond,
		InitialDevRTT:       5 * time.Millisecond,
		MinRTO:              1 * time.Millisecond,
		TimeWait:            30 * time.Millisecond,
		PayloadPoolSize:     256,
	}
}

// marshalSegment is a test shorthand producing a segment's wire form.
func marshalSegment(seg *Segment) []byte {
	buf := make([]byte, MaxSegmentSize)
	n, err := seg.Marshal(buf)
	if err != nil {
		panic(err)
	}
	return buf[:n]
}

// mustSegment builds a segment or panics; for test fixtures only.
func mustSegment(seqNum, ackNum uint32, segType SegmentType, data []byte) *Segment {
	seg, err := NewSegment(seqNum, ackNum, segType, data)
	if err != nil {
		panic(err)
	}
	return seg
}
