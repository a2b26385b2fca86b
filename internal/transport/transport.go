// Package transport defines the connection contract the tick loop polls
// and the buffered mailbox the concrete transports share.
package transport

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"voxelhost.ai/internal/protocol"
)

var (
	ErrClosed        = errors.New("mailbox closed")
	ErrSlowConsumer  = errors.New("outbound queue full")
	ErrInboxOverflow = errors.New("inbound queue full")
)

// Mailbox is one client connection as the server sees it. All methods are
// non-blocking.
type Mailbox interface {
	ID() string
	RemoteAddr() string
	// NewMessages returns everything received since the last call.
	NewMessages() []protocol.ClientMsg
	Send(protocol.ServerMsg)
	// Err is non-nil once the connection failed or was closed.
	Err() error
	Close()
}

// Listener hands out new connections. Err reports a fatal listener failure.
type Listener interface {
	NewConnections() []Mailbox
	Err() error
	Close() error
}

const (
	DefaultOutBuffer = 4096
	DefaultInBuffer  = 1024
)

// Conn is the Mailbox implementation behind every transport. The transport
// goroutines feed it with Deliver and drain Outbox; the tick goroutine uses
// the Mailbox side.
type Conn struct {
	id     string
	remote string

	mu       sync.Mutex
	inbox    []protocol.ClientMsg
	maxInbox int
	err      error

	out  chan protocol.ServerMsg
	done chan struct{}
	once sync.Once
}

func NewConn(remote string, outBuffer, inBuffer int) *Conn {
	if outBuffer <= 0 {
		outBuffer = DefaultOutBuffer
	}
	if inBuffer <= 0 {
		inBuffer = DefaultInBuffer
	}
	return &Conn{
		id:       uuid.NewString(),
		remote:   remote,
		maxInbox: inBuffer,
		out:      make(chan protocol.ServerMsg, outBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) RemoteAddr() string { return c.remote }

func (c *Conn) NewMessages() []protocol.ClientMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.inbox
	c.inbox = nil
	return msgs
}

// Send queues a message. A full queue fails the connection rather than
// blocking the tick.
func (c *Conn) Send(m protocol.ServerMsg) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.out <- m:
	default:
		c.Fail(ErrSlowConsumer)
	}
}

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) Close() { c.Fail(ErrClosed) }

// Deliver appends an inbound message.
func (c *Conn) Deliver(m protocol.ClientMsg) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	if len(c.inbox) >= c.maxInbox {
		c.mu.Unlock()
		c.Fail(ErrInboxOverflow)
		return
	}
	c.inbox = append(c.inbox, m)
	c.mu.Unlock()
}

// Fail records the first error and signals Done.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) Outbox() <-chan protocol.ServerMsg { return c.out }
func (c *Conn) Done() <-chan struct{}            { return c.done }

// DrainOutbox returns queued messages without blocking. Writers call it
// after Done to flush farewells such as DISCONNECT.
func (c *Conn) DrainOutbox() []protocol.ServerMsg {
	var out []protocol.ServerMsg
	for {
		select {
		case m := <-c.out:
			out = append(out, m)
		default:
			return out
		}
	}
}

// Acceptor collects accepted connections until the tick picks them up.
type Acceptor struct {
	mu    sync.Mutex
	fresh []Mailbox
	err   error
}

func (a *Acceptor) Push(m Mailbox) {
	a.mu.Lock()
	a.fresh = append(a.fresh, m)
	a.mu.Unlock()
}

func (a *Acceptor) NewConnections() []Mailbox {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.fresh
	a.fresh = nil
	return out
}

// Fail marks the listener as broken. The first error wins.
func (a *Acceptor) Fail(err error) {
	a.mu.Lock()
	if a.err == nil {
		a.err = err
	}
	a.mu.Unlock()
}

func (a *Acceptor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

type multi []Listener

// Join merges listeners into one.
func Join(ls ...Listener) Listener { return multi(ls) }

func (m multi) NewConnections() []Mailbox {
	var out []Mailbox
	for _, l := range m {
		out = append(out, l.NewConnections()...)
	}
	return out
}

func (m multi) Err() error {
	for _, l := range m {
		if err := l.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) Close() error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}
