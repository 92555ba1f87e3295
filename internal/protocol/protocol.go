package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeJoin       = "JOIN"
	TypeReady      = "READY"
	TypeForceStart = "FORCE_START"
	TypeLeave      = "LEAVE"
	TypeCommand    = "COMMAND"
	TypeSpawn      = "SPAWN"

	TypeJoinResult      = "JOIN_RESULT"
	TypeLobbyUpdate     = "LOBBY_UPDATE"
	TypeCommandFeedback = "COMMAND_FEEDBACK"
	TypeSpawnResult     = "SPAWN_RESULT"
	TypeState           = "STATE"
	TypeMatchStarted    = "MATCH_STARTED"
	TypeMatchEnded      = "MATCH_ENDED"
	TypeError           = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocolVersion,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
