package controlpoints

import (
	"math"
	"testing"

	"skirmish.ai/internal/sim/geom"
)

var testCfg = Config{CaptureRate: 0.5, DecayRate: 0.1, FullThreshold: 1, NeutralBand: 0.1}

func threePoints() []Point {
	return []Point{
		{ID: "A", Pos: geom.Vec3{X: 0}, CaptureRadius: 5},
		{ID: "B", Pos: geom.Vec3{X: 100}, CaptureRadius: 5},
		{ID: "C", Pos: geom.Vec3{X: 200}, CaptureRadius: 5},
	}
}

type recorder struct{ events []Event }

func (r *recorder) observe(e Event) { r.events = append(r.events, e) }

func (r *recorder) count(name string) int {
	n := 0
	for _, e := range r.events {
		if Name(e) == name {
			n++
		}
	}
	return n
}

func TestUpdate_SingleTeamCapturesAndEmitsOnce(t *testing.T) {
	tr := NewTracker(testCfg, threePoints())
	rec := &recorder{}
	tr.Subscribe(rec.observe)

	occ := []Occupant{{Team: Team1, Pos: geom.Vec3{X: 1}}}
	for i := 0; i < 10; i++ {
		tr.Update(0.5, occ)
	}
	p, _ := tr.Point("A")
	if p.Value != 1 || p.Owner != Team1 {
		t.Fatalf("point A: value=%v owner=%d", p.Value, p.Owner)
	}
	if got := rec.count("CAPTURED"); got != 1 {
		t.Fatalf("captured events: got %d want 1", got)
	}
	if b, _ := tr.Point("B"); b.Value != 0 || b.Owner != Neutral {
		t.Fatalf("unoccupied point moved: %+v", b)
	}
}

func TestUpdate_ContestHaltsProgressAndFiresOncePerOnset(t *testing.T) {
	defs := threePoints()
	defs[0].Value = 0.95
	tr := NewTracker(testCfg, defs)
	rec := &recorder{}
	tr.Subscribe(rec.observe)

	both := []Occupant{{Team: Team1, Pos: geom.Vec3{X: 1}}, {Team: Team2, Pos: geom.Vec3{X: -1}}}
	for i := 0; i < 5; i++ {
		tr.Update(0.1, both)
	}
	p, _ := tr.Point("A")
	if p.Value != 0.95 {
		t.Fatalf("contested value changed: %v", p.Value)
	}
	if got := rec.count("CONTESTED"); got != 1 {
		t.Fatalf("contested events: got %d want 1", got)
	}
	c := rec.events[0].(Contested)
	if c.Defender != Team1 || c.Attacker != Team2 || c.Progress != 0.95 {
		t.Fatalf("contested payload: %+v", c)
	}

	// Team 2 leaves, then returns: a new onset fires a second event.
	tr.Update(0.01, both[:1])
	tr.Update(0.01, both)
	if got := rec.count("CONTESTED"); got != 2 {
		t.Fatalf("contested events after re-onset: got %d want 2", got)
	}
}

func TestUpdate_ContestAtNeutralValueNamesArrivingTeam(t *testing.T) {
	tr := NewTracker(testCfg, threePoints())
	rec := &recorder{}
	tr.Subscribe(rec.observe)

	one := Occupant{Team: Team1, Pos: geom.Vec3{X: 1}}
	two := Occupant{Team: Team2, Pos: geom.Vec3{X: -1}}
	tr.Update(0.1, []Occupant{two})
	p, _ := tr.Point("A")
	p.Value = 0
	tr.Update(0.1, []Occupant{one, two})

	if got := rec.count("CONTESTED"); got != 1 {
		t.Fatalf("contested events: %d", got)
	}
	var c Contested
	for _, e := range rec.events {
		if ev, ok := e.(Contested); ok {
			c = ev
		}
	}
	if c.Defender != Team2 || c.Attacker != Team1 || c.Progress != 0 {
		t.Fatalf("contested payload: %+v", c)
	}

	// Simultaneous arrival at a neutral point has no defender.
	tr2 := NewTracker(testCfg, threePoints())
	rec2 := &recorder{}
	tr2.Subscribe(rec2.observe)
	tr2.Update(0.1, []Occupant{one, two})
	c2 := rec2.events[0].(Contested)
	if c2.Defender != Neutral || c2.Attacker != Neutral {
		t.Fatalf("simultaneous arrival: %+v", c2)
	}
}

func TestUpdate_DecayNeutralizesOwnedPoint(t *testing.T) {
	defs := threePoints()
	defs[1].Value = -1
	tr := NewTracker(testCfg, defs)
	rec := &recorder{}
	tr.Subscribe(rec.observe)
	if b, _ := tr.Point("B"); b.Owner != Team2 {
		t.Fatalf("preloaded owner: %d", b.Owner)
	}

	for i := 0; i < 120; i++ {
		tr.Update(0.1, nil)
	}
	b, _ := tr.Point("B")
	if b.Value != 0 || b.Owner != Neutral {
		t.Fatalf("decay: value=%v owner=%d", b.Value, b.Owner)
	}
	if got := rec.count("NEUTRALIZED"); got != 1 {
		t.Fatalf("neutralized events: %d", got)
	}
}

func TestUpdate_FlipThroughNeutral(t *testing.T) {
	defs := threePoints()
	defs[0].Value = 1
	tr := NewTracker(testCfg, defs)
	rec := &recorder{}
	tr.Subscribe(rec.observe)

	occ := []Occupant{{Team: Team2, Pos: geom.Vec3{}}}
	for i := 0; i < 45; i++ {
		tr.Update(0.1, occ)
	}
	a, _ := tr.Point("A")
	if a.Owner != Team2 || math.Abs(a.Value+1) > 1e-9 {
		t.Fatalf("flip: value=%v owner=%d", a.Value, a.Owner)
	}
	if rec.count("NEUTRALIZED") != 1 || rec.count("CAPTURED") != 1 {
		t.Fatalf("events: %+v", rec.events)
	}
	if cp := rec.events[1].(Captured); cp.Previous != Neutral || cp.Team != Team2 {
		t.Fatalf("captured payload: %+v", cp)
	}
}

func TestCheckVictory_Idempotent(t *testing.T) {
	defs := threePoints()
	defs[0].Value = 1
	defs[1].Value = 1
	tr := NewTracker(testCfg, defs)
	rec := &recorder{}
	tr.Subscribe(rec.observe)

	v, ok := tr.CheckVictory()
	if !ok || v.Team != Team1 || v.Counts[Team1] != 2 {
		t.Fatalf("victory: ok=%v %+v", ok, v)
	}
	for i := 0; i < 5; i++ {
		if _, ok := tr.CheckVictory(); ok {
			t.Fatalf("victory re-fired on call %d", i)
		}
		tr.Update(1, []Occupant{{Team: Team2, Pos: geom.Vec3{}}})
	}
	if rec.count("VICTORY") != 1 {
		t.Fatalf("victory events: %d", rec.count("VICTORY"))
	}
	if a, _ := tr.Point("A"); a.Value != 1 {
		t.Fatalf("tracker should be frozen after victory, value=%v", a.Value)
	}
	if tr.Winner() != Team1 {
		t.Fatalf("winner: %d", tr.Winner())
	}
}

func TestCheckVictory_AllNeutralNoWinner(t *testing.T) {
	tr := NewTracker(testCfg, threePoints())
	if _, ok := tr.CheckVictory(); ok {
		t.Fatalf("no winner expected when every point is neutral")
	}
	if tr.VictoryThreshold() != 2 {
		t.Fatalf("majority of 3: got %d", tr.VictoryThreshold())
	}
}

func TestCheckVictory_ConfiguredThreshold(t *testing.T) {
	cfg := testCfg
	cfg.VictoryPoints = 1
	defs := threePoints()
	defs[2].Value = -1
	tr := NewTracker(cfg, defs)
	v, ok := tr.CheckVictory()
	if !ok || v.Team != Team2 {
		t.Fatalf("expected team 2 win with threshold 1: %v %+v", ok, v)
	}
}
