// Package tcp serves the game protocol over yamux-multiplexed TCP. The
// client opens one stream per session and exchanges newline-delimited JSON.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	"go.uber.org/zap"

	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/transport"
)

const (
	streamAcceptWait = 5 * time.Second
	writeWait        = 5 * time.Second
)

type Listener struct {
	transport.Acceptor

	ln  net.Listener
	log *zap.Logger
	cfg *yamux.Config

	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

func Listen(addr string, logger *zap.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = io.Discard
	return &Listener{
		ln:     ln,
		log:    logger.With(zap.String("component", "tcp")),
		cfg:    cfg,
		closed: make(chan struct{}),
	}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts until ctx ends or the listener breaks. A broken listener is
// also reported through Err so the tick loop can stop.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.closed:
		}
	}()
	for {
		c, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closed:
				l.wg.Wait()
				return nil
			default:
			}
			l.Fail(err)
			return err
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(c)
		}()
	}
}

func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.ln.Close()
	})
	return err
}

func (l *Listener) handle(c net.Conn) {
	defer c.Close()
	log := l.log.With(zap.String("remote", c.RemoteAddr().String()))

	sess, err := yamux.Server(c, l.cfg)
	if err != nil {
		log.Warn("yamux session", zap.Error(err))
		return
	}
	defer sess.Close()

	type accepted struct {
		s   net.Conn
		err error
	}
	ch := make(chan accepted, 1)
	go func() {
		s, err := sess.Accept()
		ch <- accepted{s, err}
	}()
	var stream net.Conn
	select {
	case a := <-ch:
		if a.err != nil {
			log.Debug("no stream opened", zap.Error(a.err))
			return
		}
		stream = a.s
	case <-time.After(streamAcceptWait):
		log.Debug("stream open timed out")
		return
	case <-l.closed:
		return
	}
	defer stream.Close()

	mb := transport.NewConn(c.RemoteAddr().String(), 0, 0)
	log = log.With(zap.String("session_id", mb.ID()))

	go func() {
		select {
		case <-l.closed:
			mb.Fail(transport.ErrClosed)
			_ = sess.Close()
		case <-mb.Done():
		}
	}()

	go func() {
		w := bufio.NewWriter(stream)
		write := func(m protocol.ServerMsg) error {
			b, err := protocol.Encode(m)
			if err != nil {
				return err
			}
			_ = stream.SetWriteDeadline(time.Now().Add(writeWait))
			b = append(b, '\n')
			if _, err := w.Write(b); err != nil {
				return err
			}
			return w.Flush()
		}
		for {
			select {
			case m := <-mb.Outbox():
				if err := write(m); err != nil {
					mb.Fail(err)
					return
				}
			case <-mb.Done():
				for _, m := range mb.DrainOutbox() {
					if write(m) != nil {
						break
					}
				}
				_ = stream.Close()
				_ = sess.Close()
				return
			}
		}
	}()

	l.Push(mb)

	sc := bufio.NewScanner(stream)
	sc.Buffer(make([]byte, 0, 4096), protocol.MaxMessageBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.DecodeClient(line)
		if err != nil {
			mb.Deliver(protocol.Invalid{Reason: err.Error()})
			continue
		}
		mb.Deliver(msg)
	}
	err = sc.Err()
	if err == nil {
		err = io.EOF
	}
	if !errors.Is(err, io.EOF) {
		log.Debug("read failed", zap.Error(err))
	}
	mb.Fail(err)
}

// Client is the dialing side, used by bots and tests.
type Client struct {
	sess   *yamux.Session
	stream net.Conn
	sc     *bufio.Scanner
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = io.Discard
	sess, err := yamux.Client(c, cfg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	stream, err := sess.Open()
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	sc := bufio.NewScanner(stream)
	sc.Buffer(make([]byte, 0, 4096), 16<<20)
	return &Client{sess: sess, stream: stream, sc: sc}, nil
}

func (c *Client) Send(m protocol.ClientMsg) error {
	b, err := protocol.EncodeClient(m)
	if err != nil {
		return err
	}
	_, err = c.stream.Write(append(b, '\n'))
	return err
}

// Recv blocks for the next server message.
func (c *Client) Recv() (protocol.ServerMsg, error) {
	if !c.sc.Scan() {
		if err := c.sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return protocol.DecodeServer(c.sc.Bytes())
}

func (c *Client) Close() error {
	_ = c.stream.Close()
	return c.sess.Close()
}
