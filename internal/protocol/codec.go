package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownType = errors.New("unknown message type")

// MaxMessageBytes bounds a single client frame.
const MaxMessageBytes = 64 << 10

// Encode marshals a server message with its type discriminator.
func Encode(m ServerMsg) ([]byte, error) {
	return encode(m.MsgType(), m)
}

// EncodeClient marshals a client message; bots and tests use it.
func EncodeClient(m ClientMsg) ([]byte, error) {
	if _, ok := m.(Invalid); ok {
		return nil, fmt.Errorf("encode: %w", ErrUnknownType)
	}
	return encode(m.MsgType(), m)
}

func encode(typ string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	head, _ := json.Marshal(typ)
	var buf bytes.Buffer
	buf.Grow(len(body) + len(head) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(head)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// DecodeClient parses one client frame.
func DecodeClient(b []byte) (ClientMsg, error) {
	if len(b) > MaxMessageBytes {
		return nil, fmt.Errorf("message too large: %d bytes", len(b))
	}
	base, err := DecodeBase(b)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var m ClientMsg
	switch base.Type {
	case TypeRequestState:
		m, err = decodeAs[RequestState](b)
	case TypeRegister:
		m, err = decodeAs[Register](b)
	case TypeCharacter:
		m, err = decodeAs[EnterCharacter](b)
	case TypeController:
		m, err = decodeAs[Controller](b)
	case TypeChat:
		m, err = decodeAs[Chat](b)
	case TypeSetViewDistance:
		m, err = decodeAs[SetViewDistance](b)
	case TypeSwapInventorySlots:
		m, err = decodeAs[SwapInventorySlots](b)
	case TypeDropInventorySlot:
		m, err = decodeAs[DropInventorySlot](b)
	case TypePickUp:
		m, err = decodeAs[PickUp](b)
	case TypePlayerPhysics:
		m, err = decodeAs[PlayerPhysics](b)
	case TypeBreakBlock:
		m, err = decodeAs[BreakBlock](b)
	case TypePlaceBlock:
		m, err = decodeAs[PlaceBlock](b)
	case TypeTerrainChunkRequest:
		m, err = decodeAs[TerrainChunkRequest](b)
	case TypePing:
		m = Ping{}
	case TypePong:
		m = Pong{}
	case TypeDisconnect:
		m = Disconnect{}
	default:
		return nil, fmt.Errorf("decode %q: %w", base.Type, ErrUnknownType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return m, nil
}

// DecodeServer parses one server frame.
func DecodeServer(b []byte) (ServerMsg, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var m ServerMsg
	switch base.Type {
	case TypeInitialSync:
		m, err = decodeAs[InitialSync](b)
	case TypeStateAnswer:
		m, err = decodeAs[StateAnswer](b)
	case TypeForceState:
		m, err = decodeAs[ForceState](b)
	case TypeError:
		m, err = decodeAs[Error](b)
	case TypeEntityCreated:
		m, err = decodeAs[EntityCreated](b)
	case TypeEntityDeleted:
		m, err = decodeAs[EntityDeleted](b)
	case TypeEntityPos:
		m, err = decodeAs[EntityPos](b)
	case TypeEntityVel:
		m, err = decodeAs[EntityVel](b)
	case TypeEntityOri:
		m, err = decodeAs[EntityOri](b)
	case TypeEntityActionState:
		m, err = decodeAs[EntityActionState](b)
	case TypeTerrainChunkUpdate:
		m, err = decodeAs[TerrainChunkUpdate](b)
	case TypeTerrainBlockUpdates:
		m, err = decodeAs[TerrainBlockUpdates](b)
	case TypeInventoryUpdate:
		m, err = decodeAs[InventoryUpdate](b)
	case TypeChat:
		m, err = decodeAs[Chat](b)
	case TypeShutdown:
		m, err = decodeAs[Shutdown](b)
	case TypePing:
		m = Ping{}
	case TypePong:
		m = Pong{}
	case TypeDisconnect:
		m = Disconnect{}
	default:
		return nil, fmt.Errorf("decode %q: %w", base.Type, ErrUnknownType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return m, nil
}

func decodeAs[T any](b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}
