package server

import "voxelhost.ai/internal/entity"

type EventKind string

const (
	EventClientConnected    EventKind = "client_connected"
	EventClientDisconnected EventKind = "client_disconnected"
	EventChat               EventKind = "chat"
)

// Event is something the frontend may want to log or display. Tick returns
// the events of that tick in the order they happened.
type Event struct {
	Kind      EventKind
	Entity    entity.ID
	SessionID string
	Alias     string
	// Message is the formatted chat line for EventChat.
	Message string
}
