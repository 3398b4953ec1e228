package bgp

import (
	"net"

	"github.com/pkg/errors"
)

// Event is one item delivered from a connection's reader goroutine: either
// a decoded message or a terminal error (at most one error, always last).
type Event struct {
	Message Message
	Err     error
}

// Conn wraps one accepted TCP connection, decoding BGP messages on a
// dedicated reader goroutine and writing them synchronously from whichever
// goroutine calls Send (the session's own event loop, in this codebase).
type Conn struct {
	nc     net.Conn
	events chan Event
}

// NewConn takes ownership of an already-accepted net.Conn (this speaker
// never dials out) and starts its reader goroutine.
func NewConn(nc net.Conn) *Conn {
	c := &Conn{nc: nc, events: make(chan Event, 16)}
	go c.reader()
	return c
}

func (c *Conn) Events() <-chan Event { return c.events }

func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Send encodes and writes one message. A slow peer backpressures this call
// (and therefore this session) but no other session.
func (c *Conn) Send(m Message) error {
	_, err := c.nc.Write(EncodeMessage(m))
	return errors.Wrap(err, "bgp: write message")
}

func (c *Conn) Close() error { return c.nc.Close() }

func (c *Conn) reader() {
	defer close(c.events)

	var buf []byte
	tmp := make([]byte, 4096)

	for {
		for {
			msg, consumed, ok, err := DecodeMessage(buf)
			if err != nil {
				c.events <- Event{Err: errors.Wrap(err, "bgp: decode message")}
				return
			}
			if !ok {
				break
			}
			buf = buf[consumed:]
			c.events <- Event{Message: msg}
		}

		n, err := c.nc.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			c.events <- Event{Err: errors.Wrap(err, "bgp: read connection")}
			return
		}
	}
}
