package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrProtoVersion,
		ErrSessionFull,
		ErrSessionNotFound,
		ErrNotInSession,
		ErrNotReady,
		ErrAlreadyStarted,
		ErrNotActive,
		ErrStartupFailed,
		ErrBadRequest,
		ErrNoResource,
		ErrInvalidTarget,
		ErrRateLimit,
		ErrCommandFailed,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}
