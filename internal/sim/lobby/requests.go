package lobby

import (
	"skirmish.ai/internal/sim/maps"
	"skirmish.ai/internal/sim/match"
)

// JoinRequest asks to place a peer into a session. Empty SessionID means the
// oldest waiting session with room, else a new one.
type JoinRequest struct {
	Peer      match.Peer
	Name      string
	SessionID string
	GameMode  string
	Map       string
}

// Request is any in-session request routed through the inbox.
type Request interface {
	requester() string
}

type ReadyRequest struct {
	PeerID string
	Ready  bool
}

type ForceStartRequest struct {
	PeerID string
}

type CommandRequest struct {
	PeerID      string
	RequestID   string
	CommandText string
	UnitIDs     []string
}

type SpawnRequest struct {
	PeerID    string
	Archetype string
}

func (r ReadyRequest) requester() string      { return r.PeerID }
func (r ForceStartRequest) requester() string { return r.PeerID }
func (r CommandRequest) requester() string    { return r.PeerID }
func (r SpawnRequest) requester() string      { return r.PeerID }

type startupResult struct {
	session string
	gen     uint64
	m       maps.Map
	err     error
}

type expiry struct {
	session string
	gen     uint64
}
