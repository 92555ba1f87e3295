package match

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/aicmd"
	"skirmish.ai/internal/sim/geom"
	"skirmish.ai/internal/sim/maps"
	"skirmish.ai/internal/sim/tuning"
)

type fakePeer struct {
	id string

	mu     sync.Mutex
	msgs   [][]byte
	closed bool
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	p.msgs = append(p.msgs, append([]byte(nil), b...))
	return nil
}

// ofType decodes every received message of the given type into T.
func ofType[T any](t *testing.T, p *fakePeer, typ string) []T {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []T
	for _, b := range p.msgs {
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type != typ {
			continue
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal %s: %v", typ, err)
		}
		out = append(out, v)
	}
	return out
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	p.msgs = nil
	p.mu.Unlock()
}

type fakeRoster struct {
	teams       map[int][]Peer
	unavailable map[int]bool
}

func (r *fakeRoster) TeamPeers(team int) ([]Peer, bool) {
	if r.unavailable[team] {
		return nil, false
	}
	return r.teams[team], true
}

func (r *fakeRoster) Peer(id string) (Peer, bool) {
	for _, ps := range r.teams {
		for _, p := range ps {
			if p.ID() == id {
				return p, true
			}
		}
	}
	return nil, false
}

// nearMap puts both bases inside each other's vision so enemy units are
// visible from the first tick.
func nearMap() maps.Map {
	return maps.Map{
		Name: "near",
		Min:  geom.Vec3{},
		Max:  geom.Vec3{X: 64, Z: 64},
		Bases: []maps.Base{
			{Team: 1, Anchor: geom.Vec3{X: 24, Z: 32}, Facing: geom.Vec3{X: 1}},
			{Team: 2, Anchor: geom.Vec3{X: 36, Z: 32}, Facing: geom.Vec3{X: -1}},
		},
		ControlPoints: []maps.PointDef{
			{ID: "CP1", Name: "Alpha", Pos: geom.Vec3{X: 8, Z: 8}, CaptureRadius: 4, VisionRadius: 6},
			{ID: "CP2", Name: "Bravo", Pos: geom.Vec3{X: 56, Z: 56}, CaptureRadius: 4, VisionRadius: 6},
			{ID: "CP3", Name: "Charlie", Pos: geom.Vec3{X: 56, Z: 8}, CaptureRadius: 4, VisionRadius: 6},
		},
	}
}

func farMap() maps.Map {
	m := nearMap()
	m.Name = "far"
	m.Max = geom.Vec3{X: 256, Z: 64}
	m.Bases[0].Anchor = geom.Vec3{X: 16, Z: 32}
	m.Bases[1].Anchor = geom.Vec3{X: 240, Z: 32}
	return m
}

func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.BroadcastEveryTicks = 1
	t.Combat.Enabled = false
	t.Resources.BaseIncome = map[string]float64{}
	return t
}

// allUnitsPlanner sends every own unit to the first control point.
var allUnitsPlanner = aicmd.PlannerFunc(func(ctx context.Context, req aicmd.Request, view aicmd.WorldView) ([]aicmd.Assignment, string, error) {
	var out []aicmd.Assignment
	for _, u := range view.Units {
		if u.Team == req.Team && !u.Static {
			out = append(out, aicmd.Assignment{UnitID: u.ID, Goal: aicmd.GoalAttack, AttackSequence: []string{"CP1"}, PlanSummary: "attack Alpha"})
		}
	}
	return out, "attack Alpha", nil
})

type fixture struct {
	m      *Match
	p1, p2 *fakePeer
	roster *fakeRoster
}

func newFixture(t *testing.T, mp maps.Map, tun tuning.Tuning, tracked []int) *fixture {
	t.Helper()
	p1 := &fakePeer{id: "p1"}
	p2 := &fakePeer{id: "p2"}
	r := &fakeRoster{teams: map[int][]Peer{1: {p1}, 2: {p2}}, unavailable: map[int]bool{}}
	m, err := New(context.Background(), Config{
		SessionID:    "s1",
		GameMode:     "versus",
		Map:          mp,
		Tuning:       tun,
		TrackedTeams: tracked,
		Planner:      allUnitsPlanner,
		PlanTimeout:  time.Second,
		Roster:       r,
		Log:          zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	return &fixture{m: m, p1: p1, p2: p2, roster: r}
}

const dt = 1.0 / 30

// stepUntil advances until cond holds, giving planner goroutines time to
// deliver.
func stepUntil(t *testing.T, m *Match, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached by tick %d", m.Tick())
		}
		m.Advance(dt)
		time.Sleep(time.Millisecond)
	}
}

func lastState(t *testing.T, p *fakePeer) protocol.StateMsg {
	t.Helper()
	states := ofType[protocol.StateMsg](t, p, protocol.TypeState)
	if len(states) == 0 {
		t.Fatalf("peer %s has no STATE", p.id)
	}
	return states[len(states)-1]
}
