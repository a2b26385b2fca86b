package protocol

import "encoding/json"

const Version = "1.0"

// Client -> server message types.
const (
	TypeRequestState        = "REQUEST_STATE"
	TypeRegister            = "REGISTER"
	TypeCharacter           = "CHARACTER"
	TypeController          = "CONTROLLER"
	TypeChat                = "CHAT"
	TypeSetViewDistance     = "SET_VIEW_DISTANCE"
	TypeSwapInventorySlots  = "SWAP_INVENTORY_SLOTS"
	TypeDropInventorySlot   = "DROP_INVENTORY_SLOT"
	TypePickUp              = "PICK_UP"
	TypePlayerPhysics       = "PLAYER_PHYSICS"
	TypeBreakBlock          = "BREAK_BLOCK"
	TypePlaceBlock          = "PLACE_BLOCK"
	TypeTerrainChunkRequest = "TERRAIN_CHUNK_REQUEST"
	TypePing                = "PING"
	TypePong                = "PONG"
	TypeDisconnect          = "DISCONNECT"
)

// Server -> client message types.
const (
	TypeInitialSync         = "INITIAL_SYNC"
	TypeStateAnswer         = "STATE_ANSWER"
	TypeForceState          = "FORCE_STATE"
	TypeError               = "ERROR"
	TypeEntityCreated       = "ENTITY_CREATED"
	TypeEntityDeleted       = "ENTITY_DELETED"
	TypeEntityPos           = "ENTITY_POS"
	TypeEntityVel           = "ENTITY_VEL"
	TypeEntityOri           = "ENTITY_ORI"
	TypeEntityActionState   = "ENTITY_ACTION_STATE"
	TypeTerrainChunkUpdate  = "TERRAIN_CHUNK_UPDATE"
	TypeTerrainBlockUpdates = "TERRAIN_BLOCK_UPDATES"
	TypeInventoryUpdate     = "INVENTORY_UPDATE"
	TypeShutdown            = "SHUTDOWN"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
