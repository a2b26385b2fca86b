package server

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/terrain"
)

func (s *Server) acceptConnections() {
	for _, mb := range s.listener.NewConnections() {
		if s.clients.Len() >= s.cfg.MaxPlayers {
			s.log.Info("connection refused, server full",
				zap.String("session_id", mb.ID()), zap.String("remote", mb.RemoteAddr()), zap.Int("max_players", s.cfg.MaxPlayers))
			mb.Send(protocol.Error{Code: protocol.ErrTooManyPlayers, Message: "server is full"})
			mb.Close()
			continue
		}

		id := s.entities.Create()
		limiter := rate.NewLimiter(rate.Limit(s.cfg.ChatRate), max(1, s.cfg.ChatBurst))
		c := newClient(mb, id, s.time, limiter, s.log)
		c.Notify(protocol.InitialSync{
			Entities:   s.snapshotAll(),
			EntityUID:  id,
			ServerInfo: s.info,
			TimeOfDay:  s.timeOfDay,
			ChunkSize:  terrain.ChunkSize,
		})
		s.clients.Add(id, c)
		c.log.Info("client connected", zap.String("remote", mb.RemoteAddr()))
		s.emit(Event{Kind: EventClientConnected, Entity: id, SessionID: mb.ID()})
	}
}

// handleNewMessages runs every session's inbox through the state machine
// and tears down sessions that asked to leave, failed or went quiet.
func (s *Server) handleNewMessages() {
	timeout := s.cfg.ClientTimeout.Seconds()

	gone := s.clients.RemoveIf(func(id entity.ID, c *Client) bool {
		msgs := c.mb.NewMessages()
		if len(msgs) > 0 {
			c.lastSeen = s.time
			c.pinged = false
			for _, m := range msgs {
				if s.handleMessage(id, c, m) {
					return true
				}
			}
		}
		if err := c.mb.Err(); err != nil {
			c.log.Info("client transport failed", zap.Error(err))
			return true
		}
		if len(msgs) > 0 {
			return false
		}
		idle := s.time - c.lastSeen
		if idle > timeout {
			c.log.Info("client timed out", zap.Float64("idle_s", idle))
			return true
		}
		if idle > timeout/2 && !c.pinged {
			c.pinged = true
			c.Notify(protocol.Ping{})
		}
		return false
	})

	for _, c := range gone {
		s.teardown(c)
	}
	s.flushChat()
}

func (s *Server) teardown(c *Client) {
	alias := ""
	if pl, ok := s.entities.Player.Get(c.entity); ok {
		alias = pl.Alias
		s.announce(protocol.ChatOffline, alias+" went offline.")
	}
	c.Notify(protocol.Disconnect{})
	s.entities.Delete(c.entity)
	delete(s.last, c.entity)
	c.mb.Close()
	c.log.Info("client disconnected", zap.String("alias", alias))
	s.emit(Event{Kind: EventClientDisconnected, Entity: c.entity, SessionID: c.SessionID(), Alias: alias})
}
