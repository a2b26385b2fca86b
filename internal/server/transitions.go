package server

import "voxelhost.ai/internal/protocol"

// Verdict is what the session machine decides for one inbound message.
type Verdict uint8

const (
	// Ignore: nothing happens and nothing is sent.
	Ignore Verdict = iota
	// Allow: the message takes effect; Outcome.Next is the resulting state.
	Allow
	// Reject: the client gets Outcome.Err and keeps its state.
	Reject
	// Malformed: the input could not be decoded.
	Malformed
	// Drop: the session ends.
	Drop
)

type Outcome struct {
	Verdict Verdict
	Next    protocol.ClientState
	Err     protocol.RequestStateError
}

func allow(s protocol.ClientState) Outcome { return Outcome{Verdict: Allow, Next: s} }

func reject(cur protocol.ClientState, e protocol.RequestStateError) Outcome {
	return Outcome{Verdict: Reject, Next: cur, Err: e}
}

// Transition is the guard table of the session machine. It only looks at
// the state and the message kind; credential and capability checks happen
// after an Allow.
func Transition(cur protocol.ClientState, msg protocol.ClientMsg) Outcome {
	switch m := msg.(type) {
	case protocol.RequestState:
		return requestState(cur, m.State)

	case protocol.Register:
		if cur != protocol.Connected {
			return reject(cur, protocol.ErrImpossible)
		}
		return allow(protocol.Registered)

	case protocol.EnterCharacter:
		switch cur {
		case protocol.Connected:
			return reject(cur, protocol.ErrImpossible)
		case protocol.Character:
			return reject(cur, protocol.ErrAlready)
		}
		return allow(protocol.Character)

	case protocol.Controller:
		if cur == protocol.Character || cur == protocol.Dead {
			return allow(cur)
		}
		return reject(cur, protocol.ErrImpossible)

	case protocol.Chat:
		if cur == protocol.Connected {
			return reject(cur, protocol.ErrImpossible)
		}
		return allow(cur)

	case protocol.SetViewDistance, protocol.TerrainChunkRequest:
		if cur == protocol.Spectator || cur == protocol.Character {
			return allow(cur)
		}
		return reject(cur, protocol.ErrImpossible)

	case protocol.SwapInventorySlots, protocol.DropInventorySlot, protocol.PickUp, protocol.PlayerPhysics:
		if cur == protocol.Character {
			return allow(cur)
		}
		return reject(cur, protocol.ErrImpossible)

	case protocol.BreakBlock, protocol.PlaceBlock:
		// Gated on the build capability instead of the state.
		return allow(cur)

	case protocol.Ping:
		return allow(cur)
	case protocol.Pong:
		return Outcome{Verdict: Ignore, Next: cur}
	case protocol.Disconnect:
		return Outcome{Verdict: Drop, Next: cur}
	case protocol.Invalid:
		return Outcome{Verdict: Malformed, Next: cur}
	}
	return Outcome{Verdict: Malformed, Next: cur}
}

func requestState(cur, want protocol.ClientState) Outcome {
	switch want {
	case protocol.Connected:
		if cur == protocol.Connected {
			return Outcome{Verdict: Ignore, Next: cur}
		}
		return reject(cur, protocol.ErrImpossible)
	case protocol.Registered:
		switch cur {
		case protocol.Connected:
			return reject(cur, protocol.ErrWrongMessage)
		case protocol.Registered:
			return reject(cur, protocol.ErrAlready)
		}
		return allow(protocol.Registered)
	case protocol.Spectator:
		switch cur {
		case protocol.Connected:
			return reject(cur, protocol.ErrImpossible)
		case protocol.Spectator:
			return reject(cur, protocol.ErrAlready)
		}
		return allow(protocol.Spectator)
	case protocol.Character:
		return reject(cur, protocol.ErrWrongMessage)
	}
	return reject(cur, protocol.ErrImpossible)
}
