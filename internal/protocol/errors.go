package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBadCommand      = "E_BAD_COMMAND"

	// Session routing/state.
	ErrUnknownSession = "E_UNKNOWN_SESSION"
	ErrSessionFull    = "E_SESSION_FULL"
	ErrBadResume      = "E_BAD_RESUME"

	// Agent state.
	ErrAgentDead = "E_AGENT_DEAD"

	ErrRateLimit = "E_RATE_LIMIT"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadCommand:      {},
	ErrUnknownSession:  {},
	ErrSessionFull:     {},
	ErrBadResume:       {},
	ErrAgentDead:       {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
