package protocol

// RequestStateError explains why a session could not do what it asked.
// It is sent back to the client and the session stays usable.
type RequestStateError string

const (
	// ErrWrongMessage: the request is valid but must use another message.
	ErrWrongMessage RequestStateError = "WRONG_MESSAGE"
	ErrAlready      RequestStateError = "ALREADY"
	ErrImpossible   RequestStateError = "IMPOSSIBLE"
	ErrDenied       RequestStateError = "DENIED"
)

func (e RequestStateError) Error() string { return "request state: " + string(e) }

// Server error codes for ERROR messages.
const (
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrTooManyPlayers  = "E_TOO_MANY_PLAYERS"
	ErrRateLimit       = "E_RATE_LIMIT"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	string(ErrWrongMessage): {},
	string(ErrAlready):      {},
	string(ErrImpossible):   {},
	string(ErrDenied):       {},
	ErrProtoBadRequest:      {},
	ErrTooManyPlayers:       {},
	ErrRateLimit:            {},
	ErrInternal:             {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
