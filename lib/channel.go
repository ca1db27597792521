package lib

import (
	"fmt"
	"net"
	"time"
)

// Channel abstracts the unreliable, unordered, lossy datagram transport the
// protocol core runs on. Receive distinguishes timeouts from real failures
// through net.Error's Timeout method, so the reliable-send engine's retry
// logic is a pure function of that three-way result and is testable without
// real sockets.
type Channel interface {
	// Open binds the channel to an ephemeral local port (active open).
	Open() error
	// Listen binds the channel to an explicit local port (passive open).
	Listen(port int) error
	// BindToPeer fixes the single remote endpoint for the remainder of
	// the connection.
	BindToPeer(addr net.Addr) error
	// Send transmits one datagram to the bound peer.
	Send(data []byte) error
	// Receive blocks for one datagram from the bound peer, honoring the
	// receive-timeout setting.
	Receive(buf []byte) (int, error)
	// SetReceiveTimeout sets the timeout applied to subsequent Receive
	// calls. Zero disables the timeout (infinite wait).
	SetReceiveTimeout(d time.Duration) error
	// WaitForAnySender blocks, without a timeout, for a datagram from any
	// remote address and reports the sender.
	WaitForAnySender(buf []byte) (int, net.Addr, error)
	// Close releases the underlying handle.
	Close() error
}

// udpChannel implements Channel on a UDP socket. The socket is left
// unconnected so passive open can learn the peer address from the first
// datagram; once BindToPeer has run, traffic from other senders is dropped.
type udpChannel struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	timeout    time.Duration // 0 means wait forever
}

// NewUDPChannel returns an unbound UDP-backed channel.
func NewUDPChannel() Channel {
	return &udpChannel{}
}

func (c *udpChannel) Open() error {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return &ChannelError{Op: "open", Err: err}
	}
	c.conn = conn
	return nil
}

func (c *udpChannel) Listen(port int) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return &ChannelError{Op: "listen", Err: err}
	}
	c.conn = conn
	return nil
}

func (c *udpChannel) BindToPeer(addr net.Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return &ChannelError{Op: "bind", Err: fmt.Errorf("expected *net.UDPAddr, got %T", addr)}
	}
	c.remoteAddr = udpAddr
	return nil
}

func (c *udpChannel) Send(data []byte) error {
	if c.remoteAddr == nil {
		return &ChannelError{Op: "send", Err: fmt.Errorf("no peer bound")}
	}
	if _, err := c.conn.WriteToUDP(data, c.remoteAddr); err != nil {
		return &ChannelError{Op: "send", Err: err}
	}
	return nil
}

func (c *udpChannel) Receive(buf []byte) (int, error) {
	if err := c.applyDeadline(); err != nil {
		return 0, err
	}
	for {
		n, fromAddr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return 0, err
		}
		// Datagrams from anyone but the bound peer are not part of
		// this connection.
		if c.remoteAddr != nil && !sameUDPAddr(fromAddr, c.remoteAddr) {
			continue
		}
		return n, nil
	}
}

func (c *udpChannel) SetReceiveTimeout(d time.Duration) error {
	c.timeout = d
	return nil
}

func (c *udpChannel) WaitForAnySender(buf []byte) (int, net.Addr, error) {
	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, nil, &ChannelError{Op: "receive", Err: err}
	}
	n, fromAddr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	return n, fromAddr, nil
}

func (c *udpChannel) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// applyDeadline refreshes the socket read deadline from the configured
// timeout so each Receive call waits the full interval.
func (c *udpChannel) applyDeadline() error {
	var deadline time.Time
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return &ChannelError{Op: "receive", Err: err}
	}
	return nil
}

func sameUDPAddr(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// ResolvePeer turns a hostname and port into the address form BindToPeer
// expects.
func ResolvePeer(hostname string, port int) (net.Addr, error) {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", hostname, port))
	if err != nil {
		return nil, fmt.Errorf("resolving %s:%d: %w", hostname, port, err)
	}
	return addr, nil
}
