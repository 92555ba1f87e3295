package combat

import (
	"skirmish.ai/internal/sim/geom"
	"skirmish.ai/internal/sim/units"
)

// Damage is one hit reported back to the registry.
type Damage struct {
	Attacker string
	Target   string
	Amount   float64
}

// Resolver decides who hits whom during a tick. It only reads unit state;
// the caller applies the returned damage through the registry.
type Resolver interface {
	Resolve(dt float64, all []*units.Unit, visible func(team int, pos geom.Vec3) bool) []Damage
}

// Proximity makes every alive, released unit deal Damage per second to the
// nearest visible, targetable enemy inside its attack range.
type Proximity struct{}

func (Proximity) Resolve(dt float64, all []*units.Unit, visible func(team int, pos geom.Vec3) bool) []Damage {
	var out []Damage
	for _, a := range all {
		if a.Dead || a.WaitingForFirstCommand || a.Damage <= 0 || a.AttackRange <= 0 {
			continue
		}
		r2 := a.AttackRange * a.AttackRange
		var target *units.Unit
		best := 0.0
		for _, b := range all {
			if b.Team == a.Team || b.Dead || b.Untargetable {
				continue
			}
			if b.Stealthed || !visible(a.Team, b.Pos) {
				continue
			}
			d := geom.DistSqXZ(a.Pos, b.Pos)
			if d > r2 {
				continue
			}
			if target == nil || d < best {
				target, best = b, d
			}
		}
		if target != nil {
			out = append(out, Damage{Attacker: a.ID, Target: target.ID, Amount: a.Damage * dt})
		}
	}
	return out
}
