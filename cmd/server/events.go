package main

import (
	"time"

	"go.uber.org/zap"

	"voxelhost.ai/internal/persistence/indexdb"
	persistlog "voxelhost.ai/internal/persistence/log"
	"voxelhost.ai/internal/server"
)

// eventSink fans tick events out to the process log, the compressed event
// log and the session index. Either store may be nil.
type eventSink struct {
	log    *zap.Logger
	events *persistlog.EventLogger
	idx    *indexdb.SQLiteIndex
	srv    *server.Server
}

func (s eventSink) write(evs []server.Event) {
	now := time.Now().UTC()
	tick := s.srv.Metrics().Tick
	for _, e := range evs {
		if e.Kind == server.EventChat {
			s.log.Info("chat", zap.String("alias", e.Alias), zap.String("message", e.Message))
		}
		if s.events != nil {
			err := s.events.WriteEvent(persistlog.Entry{
				Time:    now,
				Tick:    tick,
				Kind:    string(e.Kind),
				Session: e.SessionID,
				Alias:   e.Alias,
				Message: e.Message,
			})
			if err != nil {
				s.log.Warn("event log write failed", zap.Error(err))
			}
		}
		if e.Kind != server.EventChat {
			s.idx.RecordSession(indexdb.SessionEvent{
				At:        now,
				Kind:      string(e.Kind),
				SessionID: e.SessionID,
				Alias:     e.Alias,
			})
		}
	}
}
