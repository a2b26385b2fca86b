package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/logging"
	"voxelhost.ai/internal/mathx"
	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/server/interest"
	"voxelhost.ai/internal/terrain"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:14004/v1/ws", "ws url")
		alias    = flag.String("alias", "bot", "player alias")
		password = flag.String("password", "bot", "password")
		vd       = flag.Uint("view_distance", 4, "view distance in chunks")
	)
	flag.Parse()

	logger, err := logging.New("info", "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer conn.Close()

	b := &bot{conn: conn, log: logger, alias: *alias, vd: uint32(*vd)}
	if err := b.send(protocol.Register{Player: entity.Player{Alias: *alias}, Password: *password}); err != nil {
		logger.Fatal("send REGISTER", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = b.send(protocol.Disconnect{})
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m, err := protocol.DecodeServer(raw)
		if err != nil {
			logger.Warn("undecodable message", zap.Error(err))
			continue
		}
		if done := b.handle(m); done {
			return
		}
	}
}

// bot walks the session through registration into the world, then asks
// for the terrain around it and keeps wandering.
type bot struct {
	conn  *websocket.Conn
	log   *zap.Logger
	alias string
	vd    uint32

	self      entity.ID
	pos       mathx.Vec3
	requested map[terrain.ChunkKey]bool
	moved     time.Time
}

func (b *bot) send(m protocol.ClientMsg) error {
	raw, err := protocol.EncodeClient(m)
	if err != nil {
		return err
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return b.conn.WriteMessage(websocket.TextMessage, raw)
}

func (b *bot) handle(m protocol.ServerMsg) bool {
	switch m := m.(type) {
	case protocol.InitialSync:
		b.self = m.EntityUID
		b.log.Info("connected", zap.String("server", m.ServerInfo.Name), zap.Uint64("entity", uint64(m.EntityUID)))

	case protocol.StateAnswer:
		if m.Error != "" {
			b.log.Warn("request refused", zap.Stringer("state", m.State), zap.String("error", string(m.Error)))
			return m.State == protocol.Connected
		}
		switch m.State {
		case protocol.Registered:
			_ = b.send(protocol.EnterCharacter{Name: b.alias, Body: entity.Body{Kind: entity.BodyHumanoid}})
		case protocol.Character:
			_ = b.send(protocol.SetViewDistance{ViewDistance: b.vd})
		}

	case protocol.ForceState:
		if m.State == protocol.Dead {
			_ = b.send(protocol.Controller{Controller: entity.Controller{Respawn: true}})
		}

	case protocol.EntityPos:
		if m.UID == b.self {
			b.pos = m.Pos
			b.requestTerrain()
		}

	case protocol.TerrainChunkUpdate:
		b.wander()

	case protocol.Chat:
		b.log.Info("chat", zap.String("kind", string(m.Kind)), zap.String("message", m.Message))

	case protocol.Error:
		b.log.Warn("server error", zap.String("code", m.Code), zap.String("message", m.Message))

	case protocol.Ping:
		_ = b.send(protocol.Pong{})

	case protocol.Shutdown:
		b.log.Info("server shutting down", zap.String("reason", m.Reason))
		return true
	case protocol.Disconnect:
		return true
	}
	return false
}

// requestTerrain asks once for every chunk in view. The server drops
// chunks that leave the view, so moving far enough clears the set.
func (b *bot) requestTerrain() {
	if b.requested == nil {
		b.requested = map[terrain.ChunkKey]bool{}
	}
	wanted := interest.WantedChunks(terrain.KeyAt(b.pos), b.vd)
	keep := make(map[terrain.ChunkKey]bool, len(wanted))
	for _, key := range wanted {
		keep[key] = true
		if !b.requested[key] {
			_ = b.send(protocol.TerrainChunkRequest{Key: key})
		}
	}
	b.requested = keep
}

func (b *bot) wander() {
	if time.Since(b.moved) < 10*time.Second {
		return
	}
	b.moved = time.Now()
	b.pos = b.pos.Add(mathx.Vec3{X: 8})
	_ = b.send(protocol.PlayerPhysics{Pos: b.pos, Ori: mathx.Vec3{X: 1}})
	_ = b.send(protocol.Chat{Message: fmt.Sprintf("at %.0f,%.0f", b.pos.X, b.pos.Y)})
	b.requestTerrain()
}
