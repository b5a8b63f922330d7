package gossip

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ugorji/go/codec"

	"github.com/mosaicnetworks/murmur/src/roster"
)

const bufSize = 64 * 1024

// ConnState is the state of the connection with one peer.
type ConnState uint32

const (
	// Disconnected ...
	Disconnected ConnState = iota
	// Connecting ...
	Connecting
	// Handshaking ...
	Handshaking
	// Negotiating ...
	Negotiating
	// RunningProtocol ...
	RunningProtocol
)

// String ...
func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Handshaking:
		return "Handshaking"
	case Negotiating:
		return "Negotiating"
	case RunningProtocol:
		return "RunningProtocol"
	default:
		return "Unknown"
	}
}

// connectHeader is the first message sent by the dialing side.
type connectHeader struct {
	From roster.NodeID
	To   roster.NodeID
}

// Connection is a framed connection with one peer. Every value is msgpack
// encoded. Reads and writes are subject to the connection timeout.
type Connection struct {
	self     roster.NodeID
	other    roster.NodeID
	outbound bool

	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	dec  *codec.Decoder
	enc  *codec.Encoder

	timeout time.Duration

	// set once the handshakes passed, before the connection is shared
	handshaken bool

	closed    int32
	closeOnce sync.Once
}

// NewConnection wraps conn.
func NewConnection(self, other roster.NodeID, outbound bool, conn net.Conn, timeout time.Duration) *Connection {
	c := &Connection{
		self:     self,
		other:    other,
		outbound: outbound,
		conn:     conn,
		r:        bufio.NewReaderSize(conn, bufSize),
		w:        bufio.NewWriterSize(conn, bufSize),
		timeout:  timeout,
	}
	c.dec = codec.NewDecoder(c.r, msgpackHandle)
	c.enc = codec.NewEncoder(c.w, msgpackHandle)
	return c
}

// Self ...
func (c *Connection) Self() roster.NodeID {
	return c.self
}

// Other ...
func (c *Connection) Other() roster.NodeID {
	return c.other
}

// Outbound returns true if this node dialed the connection.
func (c *Connection) Outbound() bool {
	return c.outbound
}

// RemoteAddr ...
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send encodes v and flushes it to the peer. The connection is closed on
// error.
func (c *Connection) Send(v interface{}) error {
	if c.timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if err := c.enc.Encode(v); err != nil {
		c.Close()
		return err
	}
	if err := c.w.Flush(); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Receive decodes the next value sent by the peer into v. The connection is
// closed on error.
func (c *Connection) Receive(v interface{}) error {
	if c.timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	if err := c.dec.Decode(v); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Exchange sends out and receives in. The member with the lower id sends
// first, so two large payloads never wait on each other's buffers.
func (c *Connection) Exchange(out interface{}, in interface{}) error {
	if c.self < c.other {
		if err := c.Send(out); err != nil {
			return err
		}
		return c.Receive(in)
	}
	if err := c.Receive(in); err != nil {
		return err
	}
	return c.Send(out)
}

// Connected returns false once the connection was closed.
func (c *Connection) Connected() bool {
	return atomic.LoadInt32(&c.closed) == 0
}

// Close closes the underlying connection. It is safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		err = c.conn.Close()
	})
	return err
}
