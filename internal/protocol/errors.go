package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session routing/state.
	ErrSessionFull     = "E_SESSION_FULL"
	ErrSessionNotFound = "E_SESSION_NOT_FOUND"
	ErrNotInSession    = "E_NOT_IN_SESSION"
	ErrNotReady        = "E_NOT_READY"
	ErrAlreadyStarted  = "E_ALREADY_STARTED"
	ErrNotActive       = "E_NOT_ACTIVE"
	ErrStartupFailed   = "E_STARTUP_FAILED"

	// Rule/command layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrCommandFailed = "E_COMMAND_FAILED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrSessionFull:     {},
	ErrSessionNotFound: {},
	ErrNotInSession:    {},
	ErrNotReady:        {},
	ErrAlreadyStarted:  {},
	ErrNotActive:       {},
	ErrStartupFailed:   {},
	ErrBadRequest:      {},
	ErrNoResource:      {},
	ErrInvalidTarget:   {},
	ErrRateLimit:       {},
	ErrCommandFailed:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
