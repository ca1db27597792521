package lib

import (
	"log"
	"time"
)

// sendEngine implements transmission-with-retry on top of a Channel. It
// captures the two synchronization idioms the state machine needs: "send and
// demand a reply" and "send and demand silence". Exactly one segment is ever
// in flight, so the engine owns fixed scratch buffers for both directions.
type sendEngine struct {
	channel Channel
	rtt     *rttEstimator
	sendBuf []byte
	recvBuf []byte
}

func newSendEngine(channel Channel, rtt *rttEstimator) *sendEngine {
	return &sendEngine{
		channel: channel,
		rtt:     rtt,
		sendBuf: make([]byte, MaxSegmentSize),
		recvBuf: make([]byte, MaxSegmentSize),
	}
}

// sendAndAwaitReply transmits seg and blocks until a reply arrives or the
// retransmission timeout elapses. On timeout the last applied timeout is
// doubled and the same segment is retransmitted; timeouts are retried
// indefinitely. A timely reply on a first attempt feeds the elapsed time
// back into the RTT estimator (retried exchanges are never sampled, per
// Karn's rule). Any non-timeout channel error is fatal to the operation.
func (e *sendEngine) sendAndAwaitReply(seg *Segment) (*Segment, error) {
	frameLen, err := seg.Marshal(e.sendBuf)
	if err != nil {
		return nil, err
	}

	timeout := e.rtt.timeout()
	retransmitted := false
	for {
		if err := e.channel.SetReceiveTimeout(timeout); err != nil {
			return nil, err
		}
		timeSent := time.Now()
		if err := e.channel.Send(e.sendBuf[:frameLen]); err != nil {
			return nil, wrapChannelError("send", err)
		}

		n, err := e.channel.Receive(e.recvBuf)
		if err != nil {
			if isTimeout(err) {
				timeout *= 2
				log.Printf("Timeout occurred waiting for %s reply. Doubling the timeout to %v.\n", seg.Type, timeout)
				retransmitted = true
				continue
			}
			return nil, wrapChannelError("receive", err)
		}

		if !retransmitted {
			e.rtt.recordSample(time.Since(timeSent))
		}

		reply := &Segment{}
		if err := reply.Unmarshal(e.recvBuf[:n]); err != nil {
			return nil, err
		}
		return reply, nil
	}
}

// sendExpectingTimeout transmits seg and waits one retransmission timeout
// for silence. A reply means the peer is still retransmitting its own
// segment, so seg is sent again; only a receive timeout is the successful
// outcome. Used where correctness relies on the absence of a response, e.g.
// the final ACK of the handshake.
func (e *sendEngine) sendExpectingTimeout(seg *Segment) error {
	frameLen, err := seg.Marshal(e.sendBuf)
	if err != nil {
		return err
	}

	for {
		if err := e.channel.Send(e.sendBuf[:frameLen]); err != nil {
			return wrapChannelError("send", err)
		}
		if err := e.channel.SetReceiveTimeout(e.rtt.timeout()); err != nil {
			return err
		}
		_, err := e.channel.Receive(e.recvBuf)
		if err != nil {
			if isTimeout(err) {
				// The segment went unanswered, as expected.
				return nil
			}
			return wrapChannelError("receive", err)
		}
		// Got a segment in return, so keep resending.
	}
}

// wrapChannelError keeps already-typed channel failures intact and wraps
// raw socket errors.
func wrapChannelError(op string, err error) error {
	if chErr, ok := err.(*ChannelError); ok {
		return chErr
	}
	return &ChannelError{Op: op, Err: err}
}
