// Package memory is an in-process transport for tests and embedded bots.
package memory

import (
	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/transport"
)

type Listener struct {
	transport.Acceptor
}

func NewListener() *Listener { return &Listener{} }

func (l *Listener) Close() error { return nil }

// Dial opens a new connection; the server sees it on its next tick.
func (l *Listener) Dial() *Client {
	c := &Client{conn: transport.NewConn("memory", 0, 0)}
	l.Push(c.conn)
	return c
}

// Client is the far end of a memory connection.
type Client struct {
	conn *transport.Conn
}

func (c *Client) ID() string { return c.conn.ID() }

func (c *Client) Send(msgs ...protocol.ClientMsg) {
	for _, m := range msgs {
		c.conn.Deliver(m)
	}
}

// Recv returns everything the server queued so far.
func (c *Client) Recv() []protocol.ServerMsg {
	var out []protocol.ServerMsg
	for {
		select {
		case m := <-c.conn.Outbox():
			out = append(out, m)
		default:
			return out
		}
	}
}

// Closed reports whether the server (or a transport fault) ended the
// connection.
func (c *Client) Closed() bool {
	select {
	case <-c.conn.Done():
		return true
	default:
		return false
	}
}

// Break simulates a transport failure.
func (c *Client) Break(err error) { c.conn.Fail(err) }
