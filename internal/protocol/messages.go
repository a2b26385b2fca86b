package protocol

import (
	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/mathx"
	"voxelhost.ai/internal/terrain"
)

// ClientMsg is anything a client may send.
type ClientMsg interface {
	MsgType() string
	clientMsg()
}

// ServerMsg is anything the server may send.
type ServerMsg interface {
	MsgType() string
	serverMsg()
}

// REQUEST_STATE (client -> server)
type RequestState struct {
	State ClientState `json:"state"`
}

// REGISTER (client -> server)
type Register struct {
	Player   entity.Player `json:"player"`
	Password string        `json:"password"`
}

// CHARACTER (client -> server)
type EnterCharacter struct {
	Name string      `json:"name"`
	Body entity.Body `json:"body"`
}

// CONTROLLER (client -> server)
type Controller struct {
	Controller entity.Controller `json:"controller"`
}

type ChatKind string

const (
	ChatBroadcast ChatKind = "broadcast"
	ChatPrivate   ChatKind = "private"
	ChatKill      ChatKind = "kill"
	ChatOnline    ChatKind = "online"
	ChatOffline   ChatKind = "offline"
)

// CHAT (both directions). Clients leave Kind empty.
type Chat struct {
	Kind    ChatKind `json:"kind,omitempty"`
	Message string   `json:"message"`
}

// SET_VIEW_DISTANCE (client -> server)
type SetViewDistance struct {
	ViewDistance uint32 `json:"view_distance"`
}

// SWAP_INVENTORY_SLOTS (client -> server)
type SwapInventorySlots struct {
	A int `json:"a"`
	B int `json:"b"`
}

// DROP_INVENTORY_SLOT (client -> server)
type DropInventorySlot struct {
	Slot int `json:"slot"`
}

// PICK_UP (client -> server)
type PickUp struct {
	UID entity.ID `json:"uid"`
}

// PLAYER_PHYSICS (client -> server)
type PlayerPhysics struct {
	Pos mathx.Vec3 `json:"pos"`
	Vel mathx.Vec3 `json:"vel"`
	Ori mathx.Vec3 `json:"ori"`
}

// BREAK_BLOCK (client -> server)
type BreakBlock struct {
	Pos mathx.Vec3i `json:"pos"`
}

// PLACE_BLOCK (client -> server)
type PlaceBlock struct {
	Pos   mathx.Vec3i   `json:"pos"`
	Block terrain.Block `json:"block"`
}

// TERRAIN_CHUNK_REQUEST (client -> server)
type TerrainChunkRequest struct {
	Key terrain.ChunkKey `json:"key"`
}

// PING, PONG and DISCONNECT travel in both directions.
type (
	Ping       struct{}
	Pong       struct{}
	Disconnect struct{}
)

// Invalid stands in for input the transport could not decode. It never
// appears on the wire.
type Invalid struct {
	Reason string
}

type ServerInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// EntitySnapshot is the synced view of one entity.
type EntitySnapshot struct {
	UID         entity.ID           `json:"uid"`
	Body        *entity.Body        `json:"body,omitempty"`
	Name        string              `json:"name,omitempty"`
	Alias       string              `json:"alias,omitempty"`
	Pos         *mathx.Vec3         `json:"pos,omitempty"`
	Vel         *mathx.Vec3         `json:"vel,omitempty"`
	Ori         *mathx.Vec3         `json:"ori,omitempty"`
	ActionState *entity.ActionState `json:"action_state,omitempty"`
	Scale       float32             `json:"scale,omitempty"`
	Item        *entity.Item        `json:"item,omitempty"`
	Admin       bool                `json:"admin,omitempty"`
}

// INITIAL_SYNC (server -> client)
type InitialSync struct {
	Entities   []EntitySnapshot `json:"entities"`
	EntityUID  entity.ID        `json:"entity_uid"`
	ServerInfo ServerInfo       `json:"server_info"`
	TimeOfDay  float64          `json:"time_of_day"`
	ChunkSize  int              `json:"chunk_size"`
}

// STATE_ANSWER (server -> client). Error is empty when State was granted.
type StateAnswer struct {
	State ClientState       `json:"state"`
	Error RequestStateError `json:"error,omitempty"`
}

// FORCE_STATE (server -> client)
type ForceState struct {
	State ClientState `json:"state"`
}

// ERROR (server -> client)
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ENTITY_CREATED (server -> client)
type EntityCreated struct {
	Entity EntitySnapshot `json:"entity"`
}

// ENTITY_DELETED (server -> client)
type EntityDeleted struct {
	UID entity.ID `json:"uid"`
}

// ENTITY_POS (server -> client)
type EntityPos struct {
	UID entity.ID  `json:"uid"`
	Pos mathx.Vec3 `json:"pos"`
}

// ENTITY_VEL (server -> client)
type EntityVel struct {
	UID entity.ID  `json:"uid"`
	Vel mathx.Vec3 `json:"vel"`
}

// ENTITY_ORI (server -> client)
type EntityOri struct {
	UID entity.ID  `json:"uid"`
	Ori mathx.Vec3 `json:"ori"`
}

// ENTITY_ACTION_STATE (server -> client)
type EntityActionState struct {
	UID         entity.ID          `json:"uid"`
	ActionState entity.ActionState `json:"action_state"`
}

// TERRAIN_CHUNK_UPDATE (server -> client)
type TerrainChunkUpdate struct {
	Chunk terrain.Record `json:"chunk"`
}

// TERRAIN_BLOCK_UPDATES (server -> client)
type TerrainBlockUpdates struct {
	Blocks []terrain.BlockUpdate `json:"blocks"`
}

// INVENTORY_UPDATE (server -> client)
type InventoryUpdate struct {
	Inventory entity.Inventory `json:"inventory"`
}

// SHUTDOWN (server -> client)
type Shutdown struct {
	Reason string `json:"reason,omitempty"`
}

func (RequestState) MsgType() string        { return TypeRequestState }
func (Register) MsgType() string            { return TypeRegister }
func (EnterCharacter) MsgType() string      { return TypeCharacter }
func (Controller) MsgType() string          { return TypeController }
func (Chat) MsgType() string                { return TypeChat }
func (SetViewDistance) MsgType() string     { return TypeSetViewDistance }
func (SwapInventorySlots) MsgType() string  { return TypeSwapInventorySlots }
func (DropInventorySlot) MsgType() string   { return TypeDropInventorySlot }
func (PickUp) MsgType() string              { return TypePickUp }
func (PlayerPhysics) MsgType() string       { return TypePlayerPhysics }
func (BreakBlock) MsgType() string          { return TypeBreakBlock }
func (PlaceBlock) MsgType() string          { return TypePlaceBlock }
func (TerrainChunkRequest) MsgType() string { return TypeTerrainChunkRequest }
func (Ping) MsgType() string                { return TypePing }
func (Pong) MsgType() string                { return TypePong }
func (Disconnect) MsgType() string          { return TypeDisconnect }
func (Invalid) MsgType() string             { return "" }

func (InitialSync) MsgType() string         { return TypeInitialSync }
func (StateAnswer) MsgType() string         { return TypeStateAnswer }
func (ForceState) MsgType() string          { return TypeForceState }
func (Error) MsgType() string               { return TypeError }
func (EntityCreated) MsgType() string       { return TypeEntityCreated }
func (EntityDeleted) MsgType() string       { return TypeEntityDeleted }
func (EntityPos) MsgType() string           { return TypeEntityPos }
func (EntityVel) MsgType() string           { return TypeEntityVel }
func (EntityOri) MsgType() string           { return TypeEntityOri }
func (EntityActionState) MsgType() string   { return TypeEntityActionState }
func (TerrainChunkUpdate) MsgType() string  { return TypeTerrainChunkUpdate }
func (TerrainBlockUpdates) MsgType() string { return TypeTerrainBlockUpdates }
func (InventoryUpdate) MsgType() string     { return TypeInventoryUpdate }
func (Shutdown) MsgType() string            { return TypeShutdown }

func (RequestState) clientMsg()        {}
func (Register) clientMsg()            {}
func (EnterCharacter) clientMsg()      {}
func (Controller) clientMsg()          {}
func (Chat) clientMsg()                {}
func (SetViewDistance) clientMsg()     {}
func (SwapInventorySlots) clientMsg()  {}
func (DropInventorySlot) clientMsg()   {}
func (PickUp) clientMsg()              {}
func (PlayerPhysics) clientMsg()       {}
func (BreakBlock) clientMsg()          {}
func (PlaceBlock) clientMsg()          {}
func (TerrainChunkRequest) clientMsg() {}
func (Ping) clientMsg()                {}
func (Pong) clientMsg()                {}
func (Disconnect) clientMsg()          {}
func (Invalid) clientMsg()             {}

func (InitialSync) serverMsg()         {}
func (StateAnswer) serverMsg()         {}
func (ForceState) serverMsg()          {}
func (Error) serverMsg()               {}
func (EntityCreated) serverMsg()       {}
func (EntityDeleted) serverMsg()       {}
func (EntityPos) serverMsg()           {}
func (EntityVel) serverMsg()           {}
func (EntityOri) serverMsg()           {}
func (EntityActionState) serverMsg()   {}
func (TerrainChunkUpdate) serverMsg()  {}
func (TerrainBlockUpdates) serverMsg() {}
func (InventoryUpdate) serverMsg()     {}
func (Chat) serverMsg()                {}
func (Ping) serverMsg()                {}
func (Pong) serverMsg()                {}
func (Disconnect) serverMsg()          {}
func (Shutdown) serverMsg()            {}
