// Package server runs the authoritative tick: it drains connections,
// steps the world, folds in generated terrain and pushes the resulting
// deltas to every client that can see them.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"voxelhost.ai/internal/chunkgen"
	"voxelhost.ai/internal/config"
	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/mathx"
	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/terrain"
	"voxelhost.ai/internal/transport"
	"voxelhost.ai/internal/worldgen"
)

// ErrListener wraps a fatal failure of the connection listener.
var ErrListener = errors.New("server: listener failed")

// TimeScale is how many in-game seconds pass per real second.
const TimeScale = 48.0

// Saver takes snapshots of edited chunks for durable storage.
type Saver interface {
	RequestSave(key terrain.ChunkKey, c *terrain.Chunk)
}

type Options struct {
	Settings config.Settings
	Listener transport.Listener
	World    *worldgen.Sim
	Pipeline *chunkgen.Pipeline
	Saver    Saver
	Commands CommandDispatcher
	Auth     *Auth
	Log      *zap.Logger
}

type Metrics struct {
	Tick          uint64  `json:"tick"`
	Clients       int     `json:"clients"`
	Entities      int     `json:"entities"`
	LoadedChunks  int     `json:"loaded_chunks"`
	PendingChunks int     `json:"pending_chunks"`
	StaleChunks   uint64  `json:"stale_chunks"`
	BlocksDropped uint64  `json:"blocks_dropped"`
	ChangesLost   uint64  `json:"entity_changes_lost"`
	TimeOfDay     float64 `json:"time_of_day"`
	StepMS        float64 `json:"step_ms"`
}

// Server is driven by one goroutine calling Tick (or Run). Metrics is the
// only method safe to call concurrently.
type Server struct {
	cfg      config.Settings
	log      *zap.Logger
	listener transport.Listener
	world    *worldgen.Sim
	gen      *chunkgen.Pipeline
	saver    Saver
	commands CommandDispatcher
	auth     *Auth
	info     protocol.ServerInfo

	clients      *Clients
	entities     *entity.Store
	terrain      *terrain.Store
	blockChanges *terrain.BlockChanges

	time      float64
	timeOfDay float64
	tick      uint64

	chat    []pendingChat
	events  []Event
	last    map[entity.ID]lastSent
	dropped uint64

	metrics  atomic.Pointer[Metrics]
	shutOnce sync.Once
}

func New(opts Options) (*Server, error) {
	if opts.Listener == nil {
		return nil, errors.New("server: no listener")
	}
	if opts.World == nil || opts.Pipeline == nil {
		return nil, errors.New("server: no world")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Commands == nil {
		opts.Commands = DefaultCommands()
	}
	if opts.Auth == nil {
		opts.Auth = NewAuth()
	}
	if opts.Saver == nil {
		opts.Saver = discardSaver{}
	}
	s := &Server{
		cfg:      opts.Settings,
		log:      opts.Log.With(zap.String("component", "server")),
		listener: opts.Listener,
		world:    opts.World,
		gen:      opts.Pipeline,
		saver:    opts.Saver,
		commands: opts.Commands,
		auth:     opts.Auth,
		info: protocol.ServerInfo{
			Name:        opts.Settings.ServerName,
			Description: opts.Settings.ServerDescription,
			Version:     protocol.Version,
		},
		clients:      newClients(),
		entities:     entity.NewStore(0),
		terrain:      terrain.NewStore(),
		blockChanges: terrain.NewBlockChanges(),
		timeOfDay:    opts.Settings.StartTime,
		last:         map[entity.ID]lastSent{},
	}
	s.metrics.Store(&Metrics{TimeOfDay: s.timeOfDay})
	return s, nil
}

type discardSaver struct{}

func (discardSaver) RequestSave(terrain.ChunkKey, *terrain.Chunk) {}

func (s *Server) Entities() *entity.Store { return s.entities }
func (s *Server) Terrain() *terrain.Store  { return s.terrain }
func (s *Server) Clients() *Clients        { return s.clients }

// SetBlock queues a block edit. Edits are applied together during the next
// tick, the last write to a position winning.
func (s *Server) SetBlock(pos mathx.Vec3i, b terrain.Block) { s.blockChanges.Set(pos, b) }

// Tick runs one fixed sequence of phases. Only a listener failure aborts
// it; everything a single client does stays with that client.
func (s *Server) Tick(dt time.Duration) ([]Event, error) {
	start := time.Now()
	s.events = nil

	if err := s.listener.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListener, err)
	}

	s.acceptConnections()
	s.handleNewMessages()

	secs := dt.Seconds()
	s.time += secs
	s.timeOfDay += secs * TimeScale
	if err := s.entities.Step(context.Background(), secs, s.ground); err != nil {
		return s.events, fmt.Errorf("world step: %w", err)
	}
	s.world.Tick(secs)

	s.applyBlockChanges()
	s.consumeGenerated()
	s.evictChunks()

	s.syncEntityLifecycle()
	s.handleDeaths()
	s.handleRespawns()
	s.syncPhysics()
	s.syncInventories()
	s.syncTerrain()

	s.cullAgents()
	s.cleanup()

	s.tick++
	s.publishMetrics(time.Since(start))
	return s.events, nil
}

func (s *Server) emit(e Event) { s.events = append(s.events, e) }

// ground reports solidity against loaded terrain only.
func (s *Server) ground(pos mathx.Vec3i) (bool, bool) {
	b, err := s.terrain.GetBlock(pos)
	if err != nil {
		return false, false
	}
	return b.IsSolid(), true
}

func (s *Server) cleanup() {
	s.entities.ForceUpdate.Clear()
	s.entities.InventoryUpdate.Clear()
	s.entities.Dying.Clear()
	s.entities.Respawning.Clear()
	s.terrain.ClearChanges()
}

func (s *Server) publishMetrics(step time.Duration) {
	gs := s.gen.Stats()
	s.metrics.Store(&Metrics{
		Tick:          s.tick,
		Clients:       s.clients.Len(),
		Entities:      s.entities.Len(),
		LoadedChunks:  s.terrain.Len(),
		PendingChunks: gs.Pending,
		StaleChunks:   gs.Stale,
		BlocksDropped: s.dropped,
		ChangesLost:   s.entities.DroppedChanges(),
		TimeOfDay:     s.timeOfDay,
		StepMS:        float64(step.Microseconds()) / 1000,
	})
}

func (s *Server) Metrics() Metrics {
	if m := s.metrics.Load(); m != nil {
		return *m
	}
	return Metrics{}
}

// Run ticks at the configured rate until ctx is done or the listener
// fails. onEvents, if set, receives each tick's events.
func (s *Server) Run(ctx context.Context, onEvents func([]Event)) error {
	interval := s.cfg.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			evs, err := s.Tick(now.Sub(last))
			last = now
			if len(evs) > 0 && onEvents != nil {
				onEvents(evs)
			}
			if err != nil {
				return err
			}
		}
	}
}

// Shutdown tells every registered client the server is going away and
// tears down all sessions, deleting their entities. It returns the
// disconnect events; the tick loop must not be running. Stopping the save
// loop is the caller's job.
func (s *Server) Shutdown(reason string) []Event {
	var evs []Event
	s.shutOnce.Do(func() {
		s.events = nil
		s.clients.NotifyRegistered(protocol.Shutdown{Reason: reason})
		for _, c := range s.clients.RemoveIf(func(entity.ID, *Client) bool { return true }) {
			s.teardown(c)
		}
		// Nobody is left to read offline notices.
		s.chat = nil
		evs = s.events
		s.events = nil
		s.log.Info("server shut down", zap.String("reason", reason), zap.Uint64("tick", s.tick), zap.Int("sessions", len(evs)))
	})
	return evs
}
