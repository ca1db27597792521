package lib

import (
	"fmt"
	"log"
	"time"
)

// ConnectionState tracks where a connection is in its lifecycle. Transitions
// are one-directional; no state is ever re-entered.
type ConnectionState uint8

const (
	StateInit ConnectionState = iota
	StateEstablished
	StateFinWait // peer sent CLOSE; our own CLOSE is still outstanding
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait:
		return "FIN_WAIT"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// ConnectionConfig carries the tunables of a single connection.
type ConnectionConfig struct {
	InitialEstimatedRTT time.Duration // starting smoothed RTT
	InitialDevRTT       time.Duration // starting RTT deviation
	MinRTO              time.Duration // floor for the retransmission timeout
	TimeWait            time.Duration // post-teardown wait absorbing delayed CLOSE retransmits
	PayloadPoolSize     int           // number of payload chunks in the ring pool
	PoolDebug           bool          // ring pool debug setting
}

func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		InitialEstimatedRTT: DefaultEstimatedRTT,
		InitialDevRTT:       DefaultDevRTT,
		MinRTO:              DefaultMinRTO,
		TimeWait:            DefaultTimeWait,
		PayloadPoolSize:     DefaultPayloadPoolSize,
	}
}

// Connection is a reliable stop-and-wait byte transport over an unreliable
// datagram channel. One instance carries a single logical stream to a single
// peer fixed at connection time, and is used by exactly one goroutine at a
// time; no interface is provided for concurrent senders or receivers sharing
// an instance.
type Connection struct {
	channel Channel
	engine  *sendEngine
	rtt     *rttEstimator
	config  *ConnectionConfig
	state   ConnectionState

	// sequenceNumber is the only counter the stop-and-wait discipline
	// needs: the next unacknowledged outbound DATA SEQ on the sending
	// side, the next expected inbound DATA SEQ on the receiving side.
	sequenceNumber uint32
}

// newConnection wires a connection onto an already-created channel. The
// channel is not yet bound to any peer.
func newConnection(channel Channel, config *ConnectionConfig) *Connection {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	initPayloadPool(config.PayloadPoolSize, config.PoolDebug)
	rtt := newRTTEstimator(config.InitialEstimatedRTT, config.InitialDevRTT, config.MinRTO)
	return &Connection{
		channel: channel,
		engine:  newSendEngine(channel, rtt),
		rtt:     rtt,
		config:  config,
		state:   StateInit,
	}
}

// Dial performs an active open: it binds an ephemeral UDP port, fixes the
// remote endpoint, and runs the three-way handshake.
func Dial(hostname string, port int, config *ConnectionConfig) (*Connection, error) {
	channel := NewUDPChannel()
	if err := channel.Open(); err != nil {
		return nil, err
	}
	conn := newConnection(channel, config)
	if err := conn.connect(hostname, port); err != nil {
		channel.Close()
		return nil, err
	}
	return conn, nil
}

// Accept performs a passive open: it binds the given local UDP port, waits
// without a timeout for a SYN from any peer, and completes the handshake
// with that peer.
func Accept(port int, config *ConnectionConfig) (*Connection, error) {
	channel := NewUDPChannel()
	if err := channel.Listen(port); err != nil {
		return nil, err
	}
	conn := newConnection(channel, config)
	if err := conn.accept(); err != nil {
		channel.Close()
		return nil, err
	}
	return conn, nil
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() ConnectionState {
	return c.state
}

// EstimatedRTT returns the current smoothed round-trip-time estimate.
func (c *Connection) EstimatedRTT() time.Duration {
	return c.rtt.estimatedRTT
}

// connect runs the active-open handshake: SYN out, SYNACK back, final ACK
// fired without blocking on a reply.
func (c *Connection) connect(hostname string, port int) error {
	if c.state != StateInit {
		return fmt.Errorf("%w: cannot connect in state %s", ErrInvalidState, c.state)
	}

	peerAddr, err := ResolvePeer(hostname, port)
	if err != nil {
		return err
	}
	if err := c.channel.BindToPeer(peerAddr); err != nil {
		return err
	}

	syn, err := NewSegment(0, 0, TypeSYN, nil)
	if err != nil {
		return err
	}
	reply, err := c.engine.sendAndAwaitReply(syn)
	if err != nil {
		return err
	}
	if reply.Type != TypeSYNACK {
		reply.ReturnChunk()
		return fmt.Errorf("%w: expected SYNACK during handshake, got %s", ErrProtocolViolation, reply.Type)
	}
	reply.ReturnChunk()

	// Final ACK of the three-way handshake. Silence means the peer got
	// it; a reply means the peer is still retransmitting its SYNACK.
	ack, err := NewSegment(0, 0, TypeACK, nil)
	if err != nil {
		return err
	}
	if err := c.engine.sendExpectingTimeout(ack); err != nil {
		return err
	}

	c.state = StateEstablished
	log.Printf("Connection to %s:%d ESTABLISHED\n", hostname, port)
	return nil
}

// accept runs the passive-open handshake: wait for a SYN, remember the
// sender as the fixed peer, then send SYNACK until the peer confirms with an
// ACK - or with a DATA segment, which means the ACK was dropped and the peer
// has already moved on to sending.
func (c *Connection) accept() error {
	if c.state != StateInit {
		return fmt.Errorf("%w: cannot accept on used connection", ErrInvalidState)
	}

	buf := make([]byte, MaxSegmentSize)
	n, fromAddr, err := c.channel.WaitForAnySender(buf)
	if err != nil {
		return wrapChannelError("receive", err)
	}
	if err := c.channel.BindToPeer(fromAddr); err != nil {
		return err
	}

	seg := &Segment{}
	if err := seg.Unmarshal(buf[:n]); err != nil {
		return err
	}
	if seg.Type != TypeSYN {
		seg.ReturnChunk()
		return fmt.Errorf("%w: expected SYN on passive open, got %s", ErrProtocolViolation, seg.Type)
	}

	synAck, err := NewSegment(0, 0, TypeSYNACK, nil)
	if err != nil {
		return err
	}
	for {
		reply, err := c.engine.sendAndAwaitReply(synAck)
		if err != nil {
			return err
		}
		replyType := reply.Type
		reply.ReturnChunk()
		if replyType == TypeACK || replyType == TypeDATA {
			// DATA here means the final ACK was dropped and the
			// peer is already sending; the retransmission engine
			// will deliver that segment again once we start
			// receiving.
			break
		}
	}

	c.state = StateEstablished
	log.Printf("Connection from %s ESTABLISHED\n", fromAddr)
	return nil
}

// SendData reliably delivers payload as a single DATA segment. It blocks
// until the peer acknowledges exactly this segment, retransmitting as
// needed, then advances the outbound sequence counter.
func (c *Connection) SendData(payload []byte) error {
	if c.state != StateEstablished {
		return fmt.Errorf("%w: cannot send in state %s", ErrInvalidState, c.state)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: end-of-stream is signalled by a nil ReceiveData result, not an empty segment", ErrEmptyPayload)
	}
	if len(payload) > MaxDataSize {
		return fmt.Errorf("payload length (%d) exceeds MaxDataSize (%d)", len(payload), MaxDataSize)
	}

	seg, err := NewSegment(c.sequenceNumber, 0, TypeDATA, payload)
	if err != nil {
		return err
	}
	defer seg.ReturnChunk()

	for {
		reply, err := c.engine.sendAndAwaitReply(seg)
		if err != nil {
			return err
		}
		replyType, replyAck := reply.Type, reply.AckNumber
		reply.ReturnChunk()

		if replyType == TypeACK && replyAck == c.sequenceNumber {
			break
		}
		// Wrong type or stale ack number: an in-flight duplicate from
		// an earlier exchange. Resend the same segment.
		log.Printf("Stale reply (%s, ack=%d) while waiting for ACK of SEQ %d. Resending.\n", replyType, replyAck, c.sequenceNumber)
	}

	c.sequenceNumber = seqIncrement(c.sequenceNumber)
	return nil
}

// ReceiveData blocks until the next in-order DATA segment arrives and
// returns its payload. A nil payload with a nil error signals that the peer
// initiated teardown; the caller should then Close the connection to finish
// the exchange. Every DATA segment is acknowledged immediately, even
// duplicates and out-of-order ones, so a sender whose ACK was lost can get
// unstuck - but only the expected sequence number is delivered.
func (c *Connection) ReceiveData() ([]byte, error) {
	if c.state != StateEstablished {
		return nil, fmt.Errorf("%w: cannot receive in state %s", ErrInvalidState, c.state)
	}

	// Data reception blocks indefinitely; the protocol has no "no data
	// available" signal.
	if err := c.channel.SetReceiveTimeout(0); err != nil {
		return nil, err
	}

	buf := make([]byte, MaxSegmentSize)
	for {
		n, err := c.channel.Receive(buf)
		if err != nil {
			return nil, wrapChannelError("receive", err)
		}

		seg := &Segment{}
		if err := seg.Unmarshal(buf[:n]); err != nil {
			return nil, err
		}

		switch seg.Type {
		case TypeACK:
			// A stray ACK from the handshake. Ignore it.
			continue

		case TypeCLOSE:
			seg.ReturnChunk()
			return nil, c.handlePeerClose()

		case TypeDATA, TypeSYN, TypeSYNACK:
			// Acknowledge regardless of sequence number; the ACK
			// for the previous delivery may have been lost and the
			// sender is stuck retransmitting.
			if err := c.sendAck(seg.SequenceNumber); err != nil {
				seg.ReturnChunk()
				return nil, err
			}
			if seg.Type != TypeDATA || seg.SequenceNumber != c.sequenceNumber {
				log.Printf("Discarding %s segment with SEQ %d (expected DATA with SEQ %d)\n", seg.Type, seg.SequenceNumber, c.sequenceNumber)
				seg.ReturnChunk()
				continue
			}

			payload := make([]byte, len(seg.Payload))
			copy(payload, seg.Payload)
			seg.ReturnChunk()
			c.sequenceNumber = seqIncrement(c.sequenceNumber)
			return payload, nil

		default:
			seg.ReturnChunk()
			return nil, fmt.Errorf("%w: segment type %s while receiving", ErrProtocolViolation, seg.Type)
		}
	}
}

// handlePeerClose answers the peer's CLOSE and parks the connection in
// FinWait; the receiver-side half of teardown runs when the caller invokes
// Close.
func (c *Connection) handlePeerClose() error {
	ack, err := NewSegment(0, 0, TypeACK, nil)
	if err != nil {
		return err
	}
	if err := c.engine.sendExpectingTimeout(ack); err != nil {
		return err
	}
	c.state = StateFinWait
	log.Println("Peer initiated teardown; connection entering FIN_WAIT")
	return nil
}

// sendAck fires a single unreliable ACK for the given DATA sequence number.
// Loss is tolerated: the sender retransmits and we ack again.
func (c *Connection) sendAck(seqNum uint32) error {
	ack, err := NewSegment(seqNum, seqNum, TypeACK, nil)
	if err != nil {
		return err
	}
	ackBuf := make([]byte, HeaderSize)
	n, err := ack.Marshal(ackBuf)
	if err != nil {
		return err
	}
	if err := c.channel.Send(ackBuf[:n]); err != nil {
		return wrapChannelError("send", err)
	}
	return nil
}

// Close tears the connection down and releases the channel. From
// Established it runs the initiator side, ending in a TIME_WAIT window that
// absorbs delayed peer retransmissions; from FinWait it runs the
// responder-side half. Either way the connection ends up Closed.
func (c *Connection) Close() error {
	switch c.state {
	case StateEstablished:
		if err := c.closeInitiator(); err != nil {
			return err
		}
	case StateFinWait:
		if err := c.closeResponder(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: cannot close in state %s", ErrInvalidState, c.state)
	}

	c.state = StateClosed
	if err := c.channel.Close(); err != nil {
		return &ChannelError{Op: "close", Err: err}
	}
	log.Println("Connection successfully closed")
	return nil
}

// closeInitiator runs the self-initiated teardown: send CLOSE until the
// peer confirms, wait for the peer's own CLOSE, then ack it and sit out
// TIME_WAIT in case that final ACK is lost.
func (c *Connection) closeInitiator() error {
	closeSeg, err := NewSegment(0, 0, TypeCLOSE, nil)
	if err != nil {
		return err
	}

	// A CLOSE in reply means the peer is tearing down simultaneously and
	// its ACK was lost; treat it as equivalent confirmation.
	for {
		reply, err := c.engine.sendAndAwaitReply(closeSeg)
		if err != nil {
			return err
		}
		replyType := reply.Type
		reply.ReturnChunk()
		if replyType == TypeACK || replyType == TypeCLOSE {
			break
		}
	}

	// Wait for the peer's CLOSE, looping past noise and past receive
	// timeouts (not expected on this leg, but tolerated).
	buf := make([]byte, MaxSegmentSize)
	for {
		if err := c.channel.SetReceiveTimeout(c.rtt.timeout()); err != nil {
			return err
		}
		n, err := c.channel.Receive(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return wrapChannelError("receive", err)
		}
		seg := &Segment{}
		if err := seg.Unmarshal(buf[:n]); err != nil {
			return err
		}
		segType := seg.Type
		seg.ReturnChunk()
		if segType == TypeCLOSE {
			break
		}
	}

	// Final ACK plus TIME_WAIT: if the peer retransmits its CLOSE because
	// this ACK was lost, ack again and keep waiting; silence for the full
	// window means teardown is complete.
	finalAck, err := NewSegment(0, 0, TypeACK, nil)
	if err != nil {
		return err
	}
	ackBuf := make([]byte, HeaderSize)
	ackLen, err := finalAck.Marshal(ackBuf)
	if err != nil {
		return err
	}
	for {
		if err := c.channel.Send(ackBuf[:ackLen]); err != nil {
			return wrapChannelError("send", err)
		}
		if err := c.channel.SetReceiveTimeout(c.config.TimeWait); err != nil {
			return err
		}
		_, err := c.channel.Receive(buf)
		if err != nil {
			if isTimeout(err) {
				// TIME_WAIT elapsed with silence.
				return nil
			}
			return wrapChannelError("receive", err)
		}
		log.Println("Segment arrived during TIME_WAIT; resending final ACK")
	}
}

// closeResponder runs the receiver-side half of teardown after the peer's
// CLOSE put the connection into FinWait: send our own CLOSE until it is
// acknowledged.
func (c *Connection) closeResponder() error {
	closeSeg, err := NewSegment(0, 0, TypeCLOSE, nil)
	if err != nil {
		return err
	}
	for {
		reply, err := c.engine.sendAndAwaitReply(closeSeg)
		if err != nil {
			return err
		}
		replyType := reply.Type
		reply.ReturnChunk()
		if replyType == TypeACK {
			return nil
		}
	}
}
