package protocol

import "fmt"

// ClientState is where a session stands in the connection lifecycle.
type ClientState uint8

const (
	Connected ClientState = iota
	Registered
	Spectator
	Character
	Dead
)

var stateNames = [...]string{
	Connected:  "CONNECTED",
	Registered: "REGISTERED",
	Spectator:  "SPECTATOR",
	Character:  "CHARACTER",
	Dead:       "DEAD",
}

func (s ClientState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("STATE(%d)", uint8(s))
}

// InWorld reports whether the session has a presence that receives world
// updates.
func (s ClientState) InWorld() bool { return s == Spectator || s == Character || s == Dead }

func (s ClientState) MarshalText() ([]byte, error) {
	if int(s) >= len(stateNames) {
		return nil, fmt.Errorf("unknown client state %d", uint8(s))
	}
	return []byte(stateNames[s]), nil
}

func (s *ClientState) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = ClientState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown client state %q", b)
}

// AllStates lists every state in order.
func AllStates() []ClientState {
	return []ClientState{Connected, Registered, Spectator, Character, Dead}
}
