package lib

import (
	"errors"
	"testing"
	"time"
)

// peerReply runs a scripted peer: for each received datagram it consults
// script with the 0-based receive index; a nil return means stay silent.
func peerReply(t *testing.T, ch *memChannel, count int, script func(i int, seg *Segment) *Segment) {
	t.Helper()
	go func() {
		buf := make([]byte, MaxSegmentSize)
		for i := 0; i < count; i++ {
			ch.SetReceiveTimeout(0)
			n, err := ch.Receive(buf)
			if err != nil {
				return
			}
			seg := &Segment{}
			if err := seg.Unmarshal(buf[:n]); err != nil {
				return
			}
			if reply := script(i, seg); reply != nil {
				ch.Send(marshalSegment(reply))
				reply.ReturnChunk()
			}
			seg.ReturnChunk()
		}
	}()
}

func newTestEngine(ch Channel) (*sendEngine, *rttEstimator) {
	cfg := testConfig()
	rtt := newRTTEstimator(cfg.InitialEstimatedRTT, cfg.InitialDevRTT, cfg.MinRTO)
	return newSendEngine(ch, rtt), rtt
}

func TestSendAndAwaitReplyRecordsSample(t *testing.T) {
	local, remote := newMemChannelPair()
	engine, rtt := newTestEngine(local)
	initialEstimate := rtt.estimatedRTT

	peerReply(t, remote, 1, func(i int, seg *Segment) *Segment {
		return mustSegment(seg.SequenceNumber, seg.SequenceNumber, TypeACK, nil)
	})

	seg := mustSegment(3, 0, TypeDATA, []byte("ping"))
	defer seg.ReturnChunk()
	reply, err := engine.sendAndAwaitReply(seg)
	if err != nil {
		t.Fatalf("sendAndAwaitReply: %v", err)
	}
	if reply.Type != TypeACK || reply.AckNumber != 3 {
		t.Errorf("reply = (%s, ack=%d), want (ACK, ack=3)", reply.Type, reply.AckNumber)
	}
	if rtt.estimatedRTT == initialEstimate {
		t.Error("RTT estimator was not updated after a timely reply")
	}
}

func TestSendAndAwaitReplyRetransmitsOnTimeout(t *testing.T) {
	local, remote := newMemChannelPair()
	engine, rtt := newTestEngine(local)
	initialEstimate := rtt.estimatedRTT

	// Stay silent on the first transmission; answer the retransmission.
	peerReply(t, remote, 2, func(i int, seg *Segment) *Segment {
		if i == 0 {
			return nil
		}
		return mustSegment(seg.SequenceNumber, seg.SequenceNumber, TypeACK, nil)
	})

	seg := mustSegment(5, 0, TypeDATA, []byte("retry me"))
	defer seg.ReturnChunk()
	reply, err := engine.sendAndAwaitReply(seg)
	if err != nil {
		t.Fatalf("sendAndAwaitReply: %v", err)
	}
	reply.ReturnChunk()

	if got := local.sends(); got != 2 {
		t.Errorf("segment transmitted %d times, want 2", got)
	}
	// A retried exchange measures retransmission ambiguity, not RTT.
	if rtt.estimatedRTT != initialEstimate {
		t.Error("RTT estimator was fed a sample from a retransmitted exchange")
	}
}

func TestSendAndAwaitReplyChannelErrorIsFatal(t *testing.T) {
	engine, _ := newTestEngine(&erroringChannel{})

	seg := mustSegment(0, 0, TypeSYN, nil)
	_, err := engine.sendAndAwaitReply(seg)
	var chErr *ChannelError
	if !errors.As(err, &chErr) {
		t.Fatalf("got %v, want *ChannelError", err)
	}
}

func TestSendExpectingTimeoutSilenceSucceeds(t *testing.T) {
	local, _ := newMemChannelPair()
	engine, _ := newTestEngine(local)

	seg := mustSegment(0, 0, TypeACK, nil)
	start := time.Now()
	if err := engine.sendExpectingTimeout(seg); err != nil {
		t.Fatalf("sendExpectingTimeout: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("returned after %v, expected to wait out the receive timeout", elapsed)
	}
	if got := local.sends(); got != 1 {
		t.Errorf("segment transmitted %d times, want 1", got)
	}
}

func TestSendExpectingTimeoutResendsOnReply(t *testing.T) {
	local, remote := newMemChannelPair()
	engine, _ := newTestEngine(local)

	// The peer is still retransmitting its SYNACK; after one more look at
	// our ACK it falls silent.
	peerReply(t, remote, 1, func(i int, seg *Segment) *Segment {
		return mustSegment(0, 0, TypeSYNACK, nil)
	})

	seg := mustSegment(0, 0, TypeACK, nil)
	if err := engine.sendExpectingTimeout(seg); err != nil {
		t.Fatalf("sendExpectingTimeout: %v", err)
	}
	if got := local.sends(); got != 2 {
		t.Errorf("segment transmitted %d times, want 2", got)
	}
}
