package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelhost.ai/internal/chunkgen"
	"voxelhost.ai/internal/config"
	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/mathx"
	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/terrain"
	"voxelhost.ai/internal/transport/memory"
	"voxelhost.ai/internal/worldgen"
)

const dt = 100 * time.Millisecond

// flatChunk is four layers of stone under four layers of air.
func flatChunk(key terrain.ChunkKey) (*terrain.Chunk, worldgen.Supplement) {
	c := terrain.NewChunk(terrain.Meta{Name: key.String()}, 0, 8, terrain.Air)
	for z := 0; z < 4; z++ {
		for y := 0; y < terrain.ChunkSize; y++ {
			for x := 0; x < terrain.ChunkSize; x++ {
				_ = c.Set(mathx.Vec3i{X: x, Y: y, Z: z}, terrain.Stone)
			}
		}
	}
	return c, worldgen.Supplement{}
}

type recordingSaver struct {
	mu   sync.Mutex
	keys map[terrain.ChunkKey]int
}

func (r *recordingSaver) RequestSave(key terrain.ChunkKey, _ *terrain.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key]++
}

type harness struct {
	t     *testing.T
	srv   *Server
	l     *memory.Listener
	gen   *chunkgen.Pipeline
	saver *recordingSaver
}

func newHarness(t *testing.T, mutate func(*config.Settings)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.MaxPlayers = 4
	cfg.Peaceful = true
	cfg.ClientTimeout = time.Second
	cfg.SpawnPoint = [3]float32{16, 16, 4}
	if mutate != nil {
		mutate(&cfg)
	}

	gen := chunkgen.New(flatChunk, 2, nil)
	gen.Start(context.Background())
	t.Cleanup(func() { _ = gen.Close() })

	l := memory.NewListener()
	saver := &recordingSaver{keys: map[terrain.ChunkKey]int{}}
	srv, err := New(Options{
		Settings: cfg,
		Listener: l,
		World:    worldgen.NewSim(1),
		Pipeline: gen,
		Saver:    saver,
	})
	require.NoError(t, err)
	return &harness{t: t, srv: srv, l: l, gen: gen, saver: saver}
}

func (h *harness) tick() []Event {
	h.t.Helper()
	evs, err := h.srv.Tick(dt)
	require.NoError(h.t, err)
	return evs
}

// tickUntil ticks until cond holds, giving generation workers time to run.
func (h *harness) tickUntil(cond func() bool) {
	h.t.Helper()
	for i := 0; i < 400; i++ {
		h.tick()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatal("condition not reached")
}

// join connects, registers and enters a character.
func (h *harness) join(alias string) (*memory.Client, entity.ID) {
	h.t.Helper()
	c := h.l.Dial()
	h.tick()
	syncs := msgsOf[protocol.InitialSync](c.Recv())
	require.Len(h.t, syncs, 1)

	c.Send(
		protocol.Register{Player: entity.Player{Alias: alias}, Password: "pw"},
		protocol.EnterCharacter{Name: alias, Body: entity.Body{Kind: entity.BodyHumanoid}},
	)
	h.tick()
	require.Equal(h.t, protocol.Character, h.state(syncs[0].EntityUID))
	c.Recv()
	return c, syncs[0].EntityUID
}

func (h *harness) state(id entity.ID) protocol.ClientState {
	c, ok := h.srv.Clients().Get(id)
	require.True(h.t, ok)
	return c.State()
}

func (h *harness) loadChunk(c *memory.Client, key terrain.ChunkKey) {
	h.t.Helper()
	c.Send(protocol.TerrainChunkRequest{Key: key})
	h.tickUntil(func() bool { return h.srv.Terrain().Has(key) })
}

func msgsOf[T protocol.ServerMsg](msgs []protocol.ServerMsg) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func chatLines(msgs []protocol.ServerMsg, kind protocol.ChatKind) []string {
	var out []string
	for _, m := range msgsOf[protocol.Chat](msgs) {
		if m.Kind == kind {
			out = append(out, m.Message)
		}
	}
	return out
}

func TestServer_InitialSync(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.ServerName = "Test World" })
	c := h.l.Dial()
	evs := h.tick()

	syncs := msgsOf[protocol.InitialSync](c.Recv())
	require.Len(t, syncs, 1)
	assert.Equal(t, "Test World", syncs[0].ServerInfo.Name)
	assert.Equal(t, terrain.ChunkSize, syncs[0].ChunkSize)
	assert.True(t, h.srv.Entities().Alive(syncs[0].EntityUID))

	require.Len(t, evs, 1)
	assert.Equal(t, EventClientConnected, evs[0].Kind)
	assert.Equal(t, c.ID(), evs[0].SessionID)
	assert.Equal(t, protocol.Connected, h.state(syncs[0].EntityUID))
}

func TestServer_CapacityRejectsWithoutEntity(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.MaxPlayers = 1 })
	a := h.l.Dial()
	b := h.l.Dial()
	h.tick()

	assert.Len(t, msgsOf[protocol.InitialSync](a.Recv()), 1)
	errs := msgsOf[protocol.Error](b.Recv())
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ErrTooManyPlayers, errs[0].Code)
	assert.True(t, b.Closed())
	assert.False(t, a.Closed())
	assert.Equal(t, 1, h.srv.Entities().Len())
	assert.Equal(t, 1, h.srv.Clients().Len())
}

func TestServer_RegisterAndEnterCharacter(t *testing.T) {
	h := newHarness(t, nil)
	c := h.l.Dial()
	h.tick()
	id := msgsOf[protocol.InitialSync](c.Recv())[0].EntityUID

	c.Send(protocol.Register{Player: entity.Player{Alias: "Bob"}, Password: "pw"})
	h.tick()
	answers := msgsOf[protocol.StateAnswer](c.Recv())
	require.Len(t, answers, 1)
	assert.Equal(t, protocol.StateAnswer{State: protocol.Registered}, answers[0])

	c.Send(protocol.EnterCharacter{Name: "Bobby", Body: entity.Body{Kind: entity.BodyHumanoid}})
	evs := h.tick()
	msgs := c.Recv()
	assert.Equal(t, []protocol.StateAnswer{{State: protocol.Character}}, msgsOf[protocol.StateAnswer](msgs))
	assert.Equal(t, []string{"[Bob] is now online."}, chatLines(msgs, protocol.ChatOnline))
	assert.Len(t, msgsOf[protocol.InventoryUpdate](msgs), 1)

	// The owner hears about its own spawn because it is forced.
	poss := msgsOf[protocol.EntityPos](msgs)
	require.Len(t, poss, 1)
	assert.Equal(t, id, poss[0].UID)
	assert.Equal(t, mathx.Vec3{X: 16, Y: 16, Z: 4}, poss[0].Pos)

	stats, ok := h.srv.Entities().Stats.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Bobby", stats.Name)
	assert.False(t, h.srv.Entities().CanBuild.Has(id))

	require.Len(t, evs, 1)
	assert.Equal(t, EventChat, evs[0].Kind)
}

func TestServer_RegisterRejectsBadAliasAndPassword(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.join("Bob")

	c := h.l.Dial()
	h.tick()
	id := msgsOf[protocol.InitialSync](c.Recv())[0].EntityUID

	c.Send(protocol.Register{Player: entity.Player{Alias: "[x]"}, Password: "pw"})
	h.tick()
	answers := msgsOf[protocol.StateAnswer](c.Recv())
	require.Len(t, answers, 1)
	assert.Equal(t, protocol.ErrImpossible, answers[0].Error)

	c.Send(protocol.Register{Player: entity.Player{Alias: "Bob"}, Password: "wrong"})
	h.tick()
	msgs := c.Recv()
	answers = msgsOf[protocol.StateAnswer](msgs)
	require.Len(t, answers, 1)
	assert.Equal(t, protocol.StateAnswer{State: protocol.Connected, Error: protocol.ErrDenied}, answers[0])
	assert.Equal(t, []string{"Access denied."}, chatLines(msgs, protocol.ChatPrivate))
	assert.Equal(t, protocol.Connected, h.state(id))
}

func TestServer_WrongStateIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	c := h.l.Dial()
	h.tick()
	c.Recv()

	c.Send(protocol.EnterCharacter{Name: "x", Body: entity.Body{Kind: entity.BodyHumanoid}})
	h.tick()
	msgs := c.Recv()
	answers := msgsOf[protocol.StateAnswer](msgs)
	require.Len(t, answers, 1)
	assert.Equal(t, protocol.Connected, answers[0].State)
	assert.Equal(t, protocol.ErrImpossible, answers[0].Error)
	assert.Len(t, chatLines(msgs, protocol.ChatPrivate), 1)
	assert.False(t, c.Closed())
}

func TestServer_MalformedInputKeepsSession(t *testing.T) {
	h := newHarness(t, nil)
	c := h.l.Dial()
	h.tick()
	c.Recv()

	c.Send(protocol.Invalid{Reason: "decode: unexpected EOF"})
	h.tick()
	errs := msgsOf[protocol.Error](c.Recv())
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ErrProtoBadRequest, errs[0].Code)
	assert.Equal(t, "decode: unexpected EOF", errs[0].Message)
	assert.False(t, c.Closed())
	assert.Equal(t, 1, h.srv.Clients().Len())
}

func TestServer_TimeoutPingsOnceThenDrops(t *testing.T) {
	h := newHarness(t, nil)
	c := h.l.Dial()

	var msgs []protocol.ServerMsg
	ticks := 0
	for ticks < 30 && !c.Closed() {
		h.tick()
		ticks++
		msgs = append(msgs, c.Recv()...)
	}
	require.True(t, c.Closed())
	assert.Len(t, msgsOf[protocol.Ping](msgs), 1)
	assert.Len(t, msgsOf[protocol.Disconnect](msgs), 1)
	assert.GreaterOrEqual(t, ticks, 10)
	assert.LessOrEqual(t, ticks, 13)
	assert.Zero(t, h.srv.Entities().Len())
}

func TestServer_AnyMessageKeepsSessionAlive(t *testing.T) {
	h := newHarness(t, nil)
	c := h.l.Dial()
	for i := 0; i < 40; i++ {
		if i%4 == 0 {
			c.Send(protocol.Pong{})
		}
		h.tick()
	}
	assert.False(t, c.Closed())
	assert.Empty(t, msgsOf[protocol.Ping](c.Recv()))
}

func TestServer_PingIsAnswered(t *testing.T) {
	h := newHarness(t, nil)
	c := h.l.Dial()
	h.tick()
	c.Recv()

	c.Send(protocol.Ping{})
	h.tick()
	assert.Len(t, msgsOf[protocol.Pong](c.Recv()), 1)
}

func TestServer_TransportFailureTearsDown(t *testing.T) {
	h := newHarness(t, nil)
	bob, bobID := h.join("Bob")
	alice, _ := h.join("Alice")
	bob.Recv()

	bob.Break(errors.New("connection reset"))
	evs := h.tick()

	msgs := alice.Recv()
	assert.Equal(t, []string{"Bob went offline."}, chatLines(msgs, protocol.ChatOffline))
	assert.Contains(t, msgsOf[protocol.EntityDeleted](msgs), protocol.EntityDeleted{UID: bobID})
	assert.False(t, h.srv.Entities().Alive(bobID))
	assert.Equal(t, 1, h.srv.Clients().Len())

	var gone []Event
	for _, e := range evs {
		if e.Kind == EventClientDisconnected {
			gone = append(gone, e)
		}
	}
	require.Len(t, gone, 1)
	assert.Equal(t, "Bob", gone[0].Alias)
}

func TestServer_DisconnectMessage(t *testing.T) {
	h := newHarness(t, nil)
	c, id := h.join("Bob")

	c.Send(protocol.Disconnect{})
	h.tick()
	assert.Len(t, msgsOf[protocol.Disconnect](c.Recv()), 1)
	assert.True(t, c.Closed())
	assert.False(t, h.srv.Entities().Alive(id))
}

func TestServer_ListenerFailureAbortsTick(t *testing.T) {
	h := newHarness(t, nil)
	h.l.Fail(errors.New("accept: too many open files"))
	_, err := h.srv.Tick(dt)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListener)
}

func TestServer_ViewDistanceIsClamped(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.MaxViewDistance = 5 })
	c, id := h.join("Bob")

	c.Send(protocol.SetViewDistance{ViewDistance: 100})
	h.tick()
	pl, ok := h.srv.Entities().Player.Get(id)
	require.True(t, ok)
	require.NotNil(t, pl.ViewDistance)
	assert.Equal(t, uint32(5), *pl.ViewDistance)
}

func TestServer_DuplicateChunkRequestsSendOneUpdate(t *testing.T) {
	h := newHarness(t, nil)
	c, _ := h.join("Bob")
	key := terrain.ChunkKey{X: 0, Y: 0}

	c.Send(
		protocol.SetViewDistance{ViewDistance: 2},
		protocol.TerrainChunkRequest{Key: key},
		protocol.TerrainChunkRequest{Key: key},
		protocol.TerrainChunkRequest{Key: key},
	)
	var msgs []protocol.ServerMsg
	h.tickUntil(func() bool {
		msgs = append(msgs, c.Recv()...)
		return len(msgsOf[protocol.TerrainChunkUpdate](msgs)) > 0
	})
	for i := 0; i < 10; i++ {
		h.tick()
		time.Sleep(time.Millisecond)
	}
	msgs = append(msgs, c.Recv()...)

	updates := msgsOf[protocol.TerrainChunkUpdate](msgs)
	require.Len(t, updates, 1)
	assert.Equal(t, key, updates[0].Chunk.Key)
	assert.Equal(t, uint64(1), h.gen.Stats().Completed)

	// Loaded chunks are answered straight from the store.
	c.Send(protocol.TerrainChunkRequest{Key: key})
	h.tick()
	assert.Len(t, msgsOf[protocol.TerrainChunkUpdate](c.Recv()), 1)
}

func TestServer_OutOfViewChunksAreEvicted(t *testing.T) {
	h := newHarness(t, nil)
	c, _ := h.join("Bob")
	key := terrain.ChunkKey{X: 0, Y: 0}
	far := terrain.ChunkKey{X: 40, Y: 40}

	c.Send(protocol.SetViewDistance{ViewDistance: 1})
	h.loadChunk(c, key)

	c.Send(protocol.TerrainChunkRequest{Key: far})
	for i := 0; i < 10; i++ {
		h.tick()
		time.Sleep(2 * time.Millisecond)
	}
	assert.False(t, h.srv.Terrain().Has(far))
	assert.False(t, h.gen.Pending(far))
	for _, u := range msgsOf[protocol.TerrainChunkUpdate](c.Recv()) {
		assert.NotEqual(t, far, u.Chunk.Key)
	}

	c.Send(protocol.PlayerPhysics{Pos: mathx.Vec3{X: 32 * 20, Y: 16, Z: 4}, Ori: mathx.Vec3{Y: 1}})
	h.tick()
	assert.False(t, h.srv.Terrain().Has(key))
}

func TestServer_BlockEditsCoalesceIntoOneBatch(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.Admins = []string{"Bob"} })
	bob, bobID := h.join("Bob")
	alice, _ := h.join("Alice")
	assert.True(t, h.srv.Entities().CanBuild.Has(bobID))

	bob.Send(protocol.SetViewDistance{ViewDistance: 2})
	h.loadChunk(bob, terrain.ChunkKey{})
	bob.Recv()
	alice.Recv()

	a := mathx.Vec3i{X: 1, Y: 1, Z: 5}
	b := mathx.Vec3i{X: 2, Y: 1, Z: 5}
	bob.Send(
		protocol.PlaceBlock{Pos: a, Block: terrain.Stone},
		protocol.PlaceBlock{Pos: b, Block: terrain.Dirt},
		protocol.BreakBlock{Pos: a},
	)
	alice.Send(protocol.PlaceBlock{Pos: mathx.Vec3i{X: 3, Y: 1, Z: 5}, Block: terrain.Stone})
	h.tick()

	want := []terrain.BlockUpdate{{Pos: a, Block: terrain.Air}, {Pos: b, Block: terrain.Dirt}}
	for _, c := range []*memory.Client{bob, alice} {
		batches := msgsOf[protocol.TerrainBlockUpdates](c.Recv())
		require.Len(t, batches, 1)
		assert.Equal(t, want, batches[0].Blocks)
	}

	got, err := h.srv.Terrain().GetBlock(b)
	require.NoError(t, err)
	assert.Equal(t, terrain.Dirt, got)
	got, err = h.srv.Terrain().GetBlock(mathx.Vec3i{X: 3, Y: 1, Z: 5})
	require.NoError(t, err)
	assert.Equal(t, terrain.Air, got)

	h.saver.mu.Lock()
	assert.Equal(t, 1, h.saver.keys[terrain.ChunkKey{}])
	h.saver.mu.Unlock()

	// Nothing changed, nothing sent.
	h.tick()
	assert.Empty(t, msgsOf[protocol.TerrainBlockUpdates](bob.Recv()))
}

func TestServer_EditsOnUnloadedTerrainAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.SetBlock(mathx.Vec3i{X: 5000, Y: 5000, Z: 1}, terrain.Stone)
	h.tick()
	assert.Equal(t, uint64(1), h.srv.Metrics().BlocksDropped)
	assert.Empty(t, h.saver.keys)
}

func TestServer_EntityUpdatesFollowInterest(t *testing.T) {
	h := newHarness(t, nil)
	bob, _ := h.join("Bob")
	alice, aliceID := h.join("Alice")
	bob.Send(protocol.SetViewDistance{ViewDistance: 2})
	alice.Send(protocol.SetViewDistance{ViewDistance: 2})
	h.tick()
	bob.Recv()
	alice.Recv()

	moved := mathx.Vec3{X: 20, Y: 16, Z: 4}
	alice.Send(protocol.PlayerPhysics{Pos: moved, Ori: mathx.Vec3{Y: 1}})
	h.tick()
	assert.Contains(t, msgsOf[protocol.EntityPos](bob.Recv()), protocol.EntityPos{UID: aliceID, Pos: moved})
	assert.Empty(t, msgsOf[protocol.EntityPos](alice.Recv()))

	alice.Send(protocol.PlayerPhysics{Pos: mathx.Vec3{X: 32 * 30, Y: 16, Z: 4}, Ori: mathx.Vec3{Y: 1}})
	h.tick()
	for _, p := range msgsOf[protocol.EntityPos](bob.Recv()) {
		assert.NotEqual(t, aliceID, p.UID)
	}

	// Unchanged fields are not resent.
	alice.Send(protocol.PlayerPhysics{Pos: moved, Ori: mathx.Vec3{Y: 1}})
	h.tick()
	msgs := bob.Recv()
	assert.Len(t, msgsOf[protocol.EntityPos](msgs), 1)
	assert.Empty(t, msgsOf[protocol.EntityOri](msgs))
}

func TestServer_DeathAndRespawn(t *testing.T) {
	h := newHarness(t, nil)
	bob, bobID := h.join("Bob")
	alice, aliceID := h.join("Alice")
	bob.Recv()

	h.srv.Entities().Stats.Update(bobID, func(st *entity.Stats) {
		st.Health.Current = 0
		st.Health.LastHitBy = aliceID
	})
	h.tick()

	bobMsgs := bob.Recv()
	assert.Equal(t, []string{"Bob was killed by Alice"}, chatLines(bobMsgs, protocol.ChatKill))
	assert.Equal(t, []string{"Bob was killed by Alice"}, chatLines(alice.Recv(), protocol.ChatKill))
	assert.Equal(t, []protocol.ForceState{{State: protocol.Dead}}, msgsOf[protocol.ForceState](bobMsgs))
	assert.Equal(t, protocol.Dead, h.state(bobID))

	st, _ := h.srv.Entities().Stats.Get(aliceID)
	assert.Equal(t, 20, st.Exp)

	h.tick()
	assert.Empty(t, chatLines(bob.Recv(), protocol.ChatKill))

	bob.Send(protocol.Controller{Controller: entity.Controller{Respawn: true}})
	h.tick()
	assert.Equal(t, []protocol.StateAnswer{{State: protocol.Character}}, msgsOf[protocol.StateAnswer](bob.Recv()))
	assert.Equal(t, protocol.Character, h.state(bobID))
	st, _ = h.srv.Entities().Stats.Get(bobID)
	assert.Equal(t, st.Health.Maximum, st.Health.Current)
	pos, _ := h.srv.Entities().Pos.Get(bobID)
	assert.Equal(t, float32(24), pos.Z)
}

func TestServer_AttackKills(t *testing.T) {
	h := newHarness(t, nil)
	bob, bobID := h.join("Bob")
	alice, aliceID := h.join("Alice")
	bob.Recv()

	alice.Send(
		protocol.PlayerPhysics{Pos: mathx.Vec3{X: 16, Y: 16, Z: 4}, Ori: mathx.Vec3{X: 1}},
		protocol.Controller{Controller: entity.Controller{Attack: true}},
	)
	bob.Send(protocol.PlayerPhysics{Pos: mathx.Vec3{X: 18, Y: 16, Z: 4}, Ori: mathx.Vec3{X: -1}})
	h.tick()

	st, _ := h.srv.Entities().Stats.Get(bobID)
	assert.Equal(t, 100-entity.BaseDamage, st.Health.Current)
	assert.Equal(t, aliceID, st.Health.LastHitBy)
	vel, _ := h.srv.Entities().Vel.Get(bobID)
	assert.Greater(t, vel.X, float32(0))
	assert.Equal(t, []protocol.EntityVel{{UID: bobID, Vel: vel}}, msgsOf[protocol.EntityVel](bob.Recv()))

	var kills []string
	for i := 0; i < 200 && h.state(bobID) != protocol.Dead; i++ {
		h.tick()
		kills = append(kills, chatLines(alice.Recv(), protocol.ChatKill)...)
	}
	require.Equal(t, protocol.Dead, h.state(bobID))
	assert.Equal(t, []string{"Bob was killed by Alice"}, kills)

	st, _ = h.srv.Entities().Stats.Get(aliceID)
	assert.Equal(t, 20, st.Exp)
	assert.Equal(t, 100, st.Health.Current)
}

func TestServer_EnvironmentalDeath(t *testing.T) {
	h := newHarness(t, nil)
	bob, bobID := h.join("Bob")

	h.srv.Entities().Stats.Update(bobID, func(st *entity.Stats) { st.Health.Current = 0 })
	h.tick()
	assert.Equal(t, []string{"Bob died"}, chatLines(bob.Recv(), protocol.ChatKill))
}

func TestServer_NPCsSpawnAndAreCulledOffTerrain(t *testing.T) {
	h := newHarness(t, nil)
	c, _ := h.join("Bob")
	c.Send(protocol.SetViewDistance{ViewDistance: 1})
	h.loadChunk(c, terrain.ChunkKey{})
	c.Recv()

	home := mathx.Vec3{X: 8, Y: 8, Z: 4}
	h.srv.spawnNPCs(worldgen.Supplement{NPCs: []worldgen.NPCSpawn{
		{Pos: home, Kind: worldgen.NPCWolf},
		{Pos: mathx.Vec3{X: 9000, Y: 9000, Z: 4}, Kind: worldgen.NPCHumanoid},
	}})
	h.tick()

	agents := h.srv.Entities().Agent.IDs()
	require.Len(t, agents, 1)
	id := agents[0]
	body, _ := h.srv.Entities().Body.Get(id)
	assert.Equal(t, entity.BodyWolf, body.Kind)
	agent, _ := h.srv.Entities().Agent.Get(id)
	assert.Equal(t, entity.Agent{Enemy: true, Home: home}, agent)
	scale, _ := h.srv.Entities().Scale.Get(id)
	assert.Equal(t, float32(1), scale)

	created := msgsOf[protocol.EntityCreated](c.Recv())
	assert.Len(t, created, 2)

	// NPC deaths remove the entity.
	h.srv.Entities().Stats.Update(id, func(st *entity.Stats) { st.Health.Current = 0 })
	h.tick()
	assert.False(t, h.srv.Entities().Alive(id))
}

func TestServer_BossStats(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.spawnNPCs(worldgen.Supplement{NPCs: []worldgen.NPCSpawn{
		{Pos: mathx.Vec3{X: 1, Y: 1, Z: 4}, Kind: worldgen.NPCWolf, Boss: true},
	}})
	ids := h.srv.Entities().Agent.IDs()
	require.Len(t, ids, 1)
	st, _ := h.srv.Entities().Stats.Get(ids[0])
	assert.GreaterOrEqual(t, st.Health.Maximum, 500)
	assert.Less(t, st.Health.Maximum, 900)
	scale, _ := h.srv.Entities().Scale.Get(ids[0])
	assert.GreaterOrEqual(t, scale, float32(2.5))
}

func TestServer_DropAndPickUp(t *testing.T) {
	h := newHarness(t, nil)
	c, id := h.join("Bob")
	pick := entity.Item{Kind: "tool", Name: "pickaxe"}
	h.srv.Entities().Inventory.Update(id, func(inv *entity.Inventory) { inv.Insert(pick) })

	c.Send(protocol.DropInventorySlot{Slot: 0})
	h.tick()
	invs := msgsOf[protocol.InventoryUpdate](c.Recv())
	require.Len(t, invs, 1)
	assert.Nil(t, invs[0].Inventory.Slots[0])

	items := h.srv.Entities().Item.IDs()
	require.Len(t, items, 1)
	pouch := items[0]
	got, _ := h.srv.Entities().Item.Get(pouch)
	assert.Equal(t, pick, got)
	body, _ := h.srv.Entities().Body.Get(pouch)
	assert.Equal(t, entity.Body{Kind: entity.BodyObject, Variant: "pouch"}, body)

	c.Send(protocol.PickUp{UID: pouch})
	h.tick()
	assert.False(t, h.srv.Entities().Alive(pouch))
	invs = msgsOf[protocol.InventoryUpdate](c.Recv())
	require.Len(t, invs, 1)
	require.NotNil(t, invs[0].Inventory.Slots[0])
	assert.Equal(t, pick, *invs[0].Inventory.Slots[0])
}

func TestServer_InventoryNeedsCharacter(t *testing.T) {
	h := newHarness(t, nil)
	c := h.l.Dial()
	h.tick()
	c.Recv()
	c.Send(protocol.Register{Player: entity.Player{Alias: "Bob"}, Password: "pw"})
	h.tick()
	c.Recv()

	c.Send(protocol.SwapInventorySlots{A: 0, B: 1})
	h.tick()
	answers := msgsOf[protocol.StateAnswer](c.Recv())
	require.Len(t, answers, 1)
	assert.Equal(t, protocol.ErrImpossible, answers[0].Error)
}

func TestServer_Chat(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.Admins = []string{"Bob"} })
	bob, _ := h.join("Bob")
	alice, _ := h.join("Alice")
	bob.Recv()

	alice.Send(protocol.Chat{Message: "hi"})
	bob.Send(protocol.Chat{Message: "hello"})
	evs := h.tick()

	want := []string{"[Alice] hi", "[ADMIN][Bob] hello"}
	assert.ElementsMatch(t, want, chatLines(bob.Recv(), protocol.ChatBroadcast))
	assert.ElementsMatch(t, want, chatLines(alice.Recv(), protocol.ChatBroadcast))
	assert.Len(t, evs, 2)
}

func TestServer_ChatCommands(t *testing.T) {
	h := newHarness(t, nil)
	bob, _ := h.join("Bob")
	alice, _ := h.join("Alice")
	bob.Recv()

	bob.Send(protocol.Chat{Message: "/help"}, protocol.Chat{Message: "/warp home"})
	h.tick()
	assert.Equal(t, []string{
		"/help: Display this message",
		"Unrecognised command: '/warp'\ntype '/help' for a list of available commands",
	}, chatLines(bob.Recv(), protocol.ChatPrivate))
	assert.Empty(t, msgsOf[protocol.Chat](alice.Recv()))
}

func TestServer_CustomCommand(t *testing.T) {
	cmds := DefaultCommands()
	var gotArgs string
	cmds.Register(Command{Keyword: "say", Help: "/say: Echo", Run: func(s *Server, id entity.ID, args string) {
		gotArgs = args
		s.clients.Notify(id, privateChat(args))
	}})

	h := newHarness(t, nil)
	h.srv.commands = cmds
	c, _ := h.join("Bob")
	c.Send(protocol.Chat{Message: "/say a b"})
	h.tick()
	assert.Equal(t, "a b", gotArgs)
	assert.Equal(t, []string{"a b"}, chatLines(c.Recv(), protocol.ChatPrivate))
}

func TestServer_ChatRateLimited(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) {
		s.ChatRate = 0.1
		s.ChatBurst = 2
	})
	c, _ := h.join("Bob")

	c.Send(protocol.Chat{Message: "1"}, protocol.Chat{Message: "2"}, protocol.Chat{Message: "3"})
	h.tick()
	msgs := c.Recv()
	assert.Equal(t, []string{"[Bob] 1", "[Bob] 2"}, chatLines(msgs, protocol.ChatBroadcast))
	errs := msgsOf[protocol.Error](msgs)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ErrRateLimit, errs[0].Code)
}

func TestServer_SpectatorLeavesCharacter(t *testing.T) {
	h := newHarness(t, nil)
	c, id := h.join("Bob")

	c.Send(protocol.RequestState{State: protocol.Spectator})
	h.tick()
	assert.Equal(t, []protocol.StateAnswer{{State: protocol.Spectator}}, msgsOf[protocol.StateAnswer](c.Recv()))
	assert.False(t, h.srv.Entities().Body.Has(id))
	assert.False(t, h.srv.Entities().Pos.Has(id))
	assert.True(t, h.srv.Entities().Player.Has(id))
	assert.True(t, h.srv.Entities().Inventory.Has(id))
}

func TestServer_Shutdown(t *testing.T) {
	h := newHarness(t, nil)
	bob, _ := h.join("Bob")
	idle := h.l.Dial()
	h.tick()
	idle.Recv()

	evs := h.srv.Shutdown("maintenance")
	assert.Empty(t, h.srv.Shutdown("twice"))

	bobMsgs := bob.Recv()
	assert.Equal(t, []protocol.Shutdown{{Reason: "maintenance"}}, msgsOf[protocol.Shutdown](bobMsgs))
	assert.Len(t, msgsOf[protocol.Disconnect](bobMsgs), 1)
	assert.Empty(t, chatLines(bobMsgs, protocol.ChatOffline))
	assert.Empty(t, msgsOf[protocol.Shutdown](idle.Recv()))
	assert.True(t, bob.Closed())
	assert.True(t, idle.Closed())
	assert.Zero(t, h.srv.Clients().Len())
	assert.Zero(t, h.srv.Entities().Len())

	require.Len(t, evs, 2)
	var aliases []string
	for _, e := range evs {
		assert.Equal(t, EventClientDisconnected, e.Kind)
		aliases = append(aliases, e.Alias)
	}
	assert.ElementsMatch(t, []string{"Bob", ""}, aliases)
}

func TestServer_MetricsAndTime(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.StartTime = 100 })
	_, _ = h.join("Bob")
	h.tick()

	m := h.srv.Metrics()
	assert.Equal(t, uint64(3), m.Tick)
	assert.Equal(t, 1, m.Clients)
	assert.Equal(t, 1, m.Entities)
	assert.InDelta(t, 100+3*0.1*TimeScale, m.TimeOfDay, 1e-6)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.TickRate = 100 })
	c := h.l.Dial()

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var seen []Event
	done := make(chan error, 1)
	go func() {
		done <- h.srv.Run(ctx, func(evs []Event) {
			mu.Lock()
			seen = append(seen, evs...)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.NotEmpty(t, c.Recv())
}
