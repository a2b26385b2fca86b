package server

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/transport"
)

// Client is the server side of one connection.
type Client struct {
	mb     transport.Mailbox
	state  protocol.ClientState
	entity entity.ID

	// lastSeen is the simulation time of the last inbound message.
	lastSeen float64
	pinged   bool
	chat     *rate.Limiter

	log *zap.Logger
}

func newClient(mb transport.Mailbox, id entity.ID, now float64, chat *rate.Limiter, log *zap.Logger) *Client {
	return &Client{
		mb:       mb,
		state:    protocol.Connected,
		entity:   id,
		lastSeen: now,
		chat:     chat,
		log:      log.With(zap.String("session_id", mb.ID()), zap.Uint64("entity", uint64(id))),
	}
}

func (c *Client) State() protocol.ClientState { return c.state }
func (c *Client) Entity() entity.ID           { return c.entity }
func (c *Client) SessionID() string           { return c.mb.ID() }

func (c *Client) Notify(m protocol.ServerMsg) { c.mb.Send(m) }

// AllowState moves the session and confirms it to the client.
func (c *Client) AllowState(s protocol.ClientState) {
	c.state = s
	c.Notify(protocol.StateAnswer{State: s})
}

// ErrorState refuses a request. The state is unchanged and the client also
// gets a readable private message.
func (c *Client) ErrorState(e protocol.RequestStateError) {
	c.log.Debug("request refused", zap.Stringer("state", c.state), zap.String("error", string(e)))
	c.Notify(protocol.StateAnswer{State: c.state, Error: e})
	c.Notify(protocol.Chat{Kind: protocol.ChatPrivate, Message: errorText(e)})
}

// ForceState moves the session without the client asking.
func (c *Client) ForceState(s protocol.ClientState) {
	c.state = s
	c.Notify(protocol.ForceState{State: s})
}

func errorText(e protocol.RequestStateError) string {
	switch e {
	case protocol.ErrWrongMessage:
		return "That request needs a different message."
	case protocol.ErrAlready:
		return "You are already in that state."
	case protocol.ErrImpossible:
		return "That is not possible right now."
	case protocol.ErrDenied:
		return "Access denied."
	default:
		return "Request failed: " + string(e)
	}
}
