package protocol

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// STATE (server -> every peer of one team), sent every broadcast interval.
type StateMsg struct {
	Type string `json:"type"`
	Tick uint64 `json:"tick"`

	Units              []UnitState         `json:"units"`
	Mines              []MineState         `json:"mines"`
	ControlPoints      []ControlPointState `json:"controlPoints"`
	Resources          []ResourceState     `json:"resources,omitempty"`
	VisibilityGrid     []byte              `json:"visibilityGrid"`
	VisibilityGridMeta GridMeta            `json:"visibilityGridMeta"`
	AICoordination     AICoordination      `json:"aiCoordination"`
}

type UnitState struct {
	ID                     string     `json:"id"`
	Archetype              string     `json:"archetype"`
	TeamID                 int        `json:"teamId"`
	Position               Vec3       `json:"position"`
	Velocity               Vec3       `json:"velocity"`
	OrientationBasis       [9]float64 `json:"orientationBasis"`
	Health                 float64    `json:"health"`
	MaxHealth              float64    `json:"maxHealth"`
	IsDead                 bool       `json:"isDead"`
	IsRespawning           bool       `json:"isRespawning"`
	RespawnTimer           float64    `json:"respawnTimer"`
	PlanSummary            string     `json:"planSummary"`
	WaitingForFirstCommand bool       `json:"waitingForFirstCommand"`

	// Present only for the receiving team's own units, and only when
	// changed since the last disclosed snapshot.
	StrategicGoal       *string  `json:"strategicGoal,omitempty"`
	AttackSequence      []string `json:"attackSequence,omitempty"`
	AttackSequenceIndex *int     `json:"attackSequenceIndex,omitempty"`
}

type MineState struct {
	ID       string `json:"id"`
	TeamID   int    `json:"teamId"`
	Position Vec3   `json:"position"`
}

type ControlPointState struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	TeamID       int     `json:"teamId"`
	CaptureValue float64 `json:"captureValue"`
	Position     Vec3    `json:"position"`
}

type ResourceState struct {
	Type        string  `json:"type"`
	Pool        int     `json:"pool"`
	Cap         int     `json:"cap"`
	NetRate     float64 `json:"netRate"`
	RollingRate float64 `json:"rollingRate"`
}

type GridMeta struct {
	CellSize float64 `json:"cellSize"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

type AICoordination struct {
	WaitingForSynchronizedStart bool  `json:"waitingForSynchronizedStart"`
	TeamsAwaitingCommands       []int `json:"teamsAwaitingCommands"`
}
