package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocolVersion"`
	Name            string `json:"name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocolVersion"`
	PeerID          string `json:"peerId"`
	TickRateHz      int    `json:"tickRateHz"`
	BroadcastEvery  int    `json:"broadcastEveryTicks"`
}

// JOIN (client -> server). Empty SessionID means "any waiting session".
type JoinMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	GameMode  string `json:"gameMode,omitempty"`
	Map       string `json:"map,omitempty"`
}

type ReadyMsg struct {
	Type  string `json:"type"`
	Ready bool   `json:"ready"`
}

// COMMAND (client -> server). Empty UnitIDs is a team-wide command.
type CommandMsg struct {
	Type        string   `json:"type"`
	RequestID   string   `json:"requestId,omitempty"`
	CommandText string   `json:"commandText"`
	UnitIDs     []string `json:"unitIds"`
}

// SPAWN (client -> server)
type SpawnMsg struct {
	Type      string `json:"type"`
	Archetype string `json:"archetype"`
}

type PlayerInfo struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
	TeamID   int    `json:"teamId"`
	Ready    bool   `json:"ready"`
}

// SessionData is the lobby view of one session.
type SessionData struct {
	SessionID string       `json:"sessionId"`
	State     string       `json:"state"`
	GameMode  string       `json:"gameMode"`
	Map       string       `json:"map"`
	Players   []PlayerInfo `json:"players"`
}

type JoinResultMsg struct {
	Type        string       `json:"type"`
	Success     bool         `json:"success"`
	Summary     string       `json:"summary"`
	Code        string       `json:"code,omitempty"`
	SessionID   string       `json:"sessionId,omitempty"`
	PlayerTeam  int          `json:"playerTeam,omitempty"`
	SessionData *SessionData `json:"sessionData,omitempty"`
}

type LobbyUpdateMsg struct {
	Type        string      `json:"type"`
	Success     bool        `json:"success"`
	Summary     string      `json:"summary"`
	Code        string      `json:"code,omitempty"`
	SessionData SessionData `json:"sessionData"`
}

type CommandFeedbackMsg struct {
	Type      string   `json:"type"`
	RequestID string   `json:"requestId,omitempty"`
	Success   bool     `json:"success"`
	Summary   string   `json:"summary"`
	StatusTag string   `json:"statusTag"`
	UnitIDs   []string `json:"unitIds,omitempty"`
}

type SpawnResultMsg struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Summary   string `json:"summary"`
	Code      string `json:"code,omitempty"`
	Archetype string `json:"archetype"`
	UnitID    string `json:"unitId,omitempty"`
}

type MatchStartedMsg struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	PlayerTeam int    `json:"playerTeam"`
	Map        string `json:"map"`
	GameMode   string `json:"gameMode"`
}

// Victory types carried by MATCH_ENDED.
const (
	VictoryControl     = "control"
	VictoryElimination = "elimination"
	VictoryDraw        = "draw"
	VictoryAbandoned   = "abandoned"
)

type MatchEndedMsg struct {
	Type               string         `json:"type"`
	SessionID          string         `json:"sessionId"`
	WinningTeam        int            `json:"winningTeam"`
	VictoryType        string         `json:"victoryType"`
	DurationSeconds    float64        `json:"durationSeconds"`
	FinalControlCounts map[string]int `json:"finalControlCounts"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
