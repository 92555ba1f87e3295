package combat

import (
	"testing"

	"skirmish.ai/internal/sim/geom"
	"skirmish.ai/internal/sim/units"
)

func seeAll(int, geom.Vec3) bool { return true }

func TestProximity_PicksNearestVisibleEnemy(t *testing.T) {
	a := &units.Unit{ID: "U1", Team: 1, Damage: 10, AttackRange: 10}
	far := &units.Unit{ID: "U2", Team: 2, Pos: geom.Vec3{X: 8}}
	near := &units.Unit{ID: "U3", Team: 2, Pos: geom.Vec3{X: 3}}
	out := Proximity{}.Resolve(0.5, []*units.Unit{a, far, near}, seeAll)
	if len(out) != 1 || out[0].Target != "U3" || out[0].Amount != 5 {
		t.Fatalf("damage: %+v", out)
	}
}

func TestProximity_RespectsGateStealthAndVision(t *testing.T) {
	waiting := &units.Unit{ID: "U1", Team: 1, Damage: 10, AttackRange: 10, WaitingForFirstCommand: true}
	shooter := &units.Unit{ID: "U2", Team: 1, Damage: 10, AttackRange: 10}
	hidden := &units.Unit{ID: "U3", Team: 2, Pos: geom.Vec3{X: 1}, Stealthed: true}
	immune := &units.Unit{ID: "U4", Team: 2, Pos: geom.Vec3{X: 1}, Untargetable: true}
	fogged := &units.Unit{ID: "U5", Team: 2, Pos: geom.Vec3{X: 2}}

	blind := func(int, geom.Vec3) bool { return false }
	if out := (Proximity{}).Resolve(1, []*units.Unit{waiting, shooter, hidden, immune, fogged}, blind); len(out) != 0 {
		t.Fatalf("no valid targets expected, got %+v", out)
	}
	out := Proximity{}.Resolve(1, []*units.Unit{waiting, shooter, hidden, immune, fogged}, seeAll)
	if len(out) != 1 || out[0].Attacker != "U2" || out[0].Target != "U5" {
		t.Fatalf("damage: %+v", out)
	}
}
