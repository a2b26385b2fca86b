package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/transport"
)

const (
	writeWait = 5 * time.Second
	// readWait outlasts the server's own ping cadence.
	readWait = 60 * time.Second
)

// Server accepts websocket connections and hands them to the tick loop as
// mailboxes.
type Server struct {
	transport.Acceptor

	log      *zap.Logger
	upgrader websocket.Upgrader
	closing  chan struct{}
}

func NewServer(logger *zap.Logger) *Server {
	return &Server{
		log: logger.With(zap.String("component", "ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		closing: make(chan struct{}),
	}
}

// Close stops accepting new connections. Existing mailboxes are closed by
// their owners.
func (s *Server) Close() error {
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}
	return nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		select {
		case <-s.closing:
			http.Error(rw, "shutting down", http.StatusServiceUnavailable)
			return
		default:
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(protocol.MaxMessageBytes)

		mb := transport.NewConn(r.RemoteAddr, 0, 0)
		log := s.log.With(zap.String("session_id", mb.ID()), zap.String("remote", r.RemoteAddr))
		log.Debug("connection accepted")

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case m := <-mb.Outbox():
					if err := writeMsg(conn, m); err != nil {
						mb.Fail(err)
						return
					}
				case <-mb.Done():
					for _, m := range mb.DrainOutbox() {
						if writeMsg(conn, m) != nil {
							break
						}
					}
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
					_ = conn.Close()
					return
				}
			}
		}()

		s.Push(mb)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			typ, raw, err := conn.ReadMessage()
			if err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug("read failed", zap.Error(err))
				}
				mb.Fail(err)
				break
			}
			if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
				continue
			}
			msg, err := protocol.DecodeClient(raw)
			if err != nil {
				mb.Deliver(protocol.Invalid{Reason: err.Error()})
				continue
			}
			mb.Deliver(msg)
		}
		<-writerDone
	}
}

func writeMsg(conn *websocket.Conn, m protocol.ServerMsg) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
