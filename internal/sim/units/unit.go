package units

import "skirmish.ai/internal/sim/geom"

// Archetype is the spawn-time capability class of a unit.
type Archetype struct {
	Name           string
	Health         float64
	Speed          float64
	Damage         float64
	VisionRange    float64
	AttackRange    float64
	RespawnSeconds float64
	// Static archetypes (defenses) are removed permanently on death.
	Static    bool
	Stealthed bool
	Cost      map[string]int
}

// Unit is the authoritative state of one unit. Only the registry writes the
// physical fields; the AI coordinator writes the goal fields.
type Unit struct {
	ID        string
	Archetype string
	Team      int

	MaxHealth   float64
	Speed       float64
	Damage      float64
	VisionRange float64
	AttackRange float64
	Static      bool

	Pos      geom.Vec3
	Velocity geom.Vec3
	Yaw      float64
	Health   float64

	Dead         bool
	Respawning   bool
	RespawnTimer float64

	Stealthed    bool
	Untargetable bool

	PlanSummary    string
	StrategicGoal  string
	AttackSequence []string
	AttackIndex    int
	MoveTarget     *geom.Vec3

	WaitingForFirstCommand bool

	SpawnedTick uint64
	Kills       int
	Deaths      int
}

func (u *Unit) Alive() bool { return u != nil && !u.Dead }

// CurrentTarget is the control point the unit is heading for, if any.
func (u *Unit) CurrentTarget() (string, bool) {
	if u.AttackIndex < 0 || u.AttackIndex >= len(u.AttackSequence) {
		return "", false
	}
	return u.AttackSequence[u.AttackIndex], true
}

// Mine is a placed entity. It never moves and has no health.
type Mine struct {
	ID        string
	Team      int
	Pos       geom.Vec3
	Stealthed bool
}
