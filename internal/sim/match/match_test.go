package match

import (
	"context"
	"slices"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/aicmd"
	"skirmish.ai/internal/sim/geom"
	"skirmish.ai/internal/sim/maps"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/telemetry"
)

func TestNew_SpawnsSquadsWaitingInFormation(t *testing.T) {
	f := newFixture(t, nearMap(), testTuning(), []int{1, 2})
	squad := len(f.m.cfg.Tuning.Squad.Archetypes)
	for _, team := range Teams {
		us := f.m.Registry().Team(team)
		if len(us) != squad {
			t.Fatalf("team %d units=%d want %d", team, len(us), squad)
		}
		base, _ := f.m.Map().Base(team)
		for _, u := range us {
			if !u.WaitingForFirstCommand {
				t.Fatalf("%s not waiting", u.ID)
			}
			if geom.DistSqXZ(u.Pos, base.Anchor) > 100 {
				t.Fatalf("%s spawned far from base: %+v", u.ID, u.Pos)
			}
		}
	}
	if f.m.State() != Active {
		t.Fatalf("state=%v", f.m.State())
	}
}

func TestAdvance_SynchronizedReleaseInNextBroadcast(t *testing.T) {
	f := newFixture(t, nearMap(), testTuning(), []int{1, 2})

	f.m.SubmitCommand(CommandRequest{RequestID: "r1", PeerID: "p1", Team: 1, CommandText: "attack"})
	stepUntil(t, f.m, func() bool {
		return len(ofType[protocol.CommandFeedbackMsg](t, f.p1, protocol.TypeCommandFeedback)) == 1
	})

	fb := ofType[protocol.CommandFeedbackMsg](t, f.p1, protocol.TypeCommandFeedback)[0]
	if !fb.Success || fb.StatusTag != aicmd.StatusAwaitingOthers || fb.RequestID != "r1" {
		t.Fatalf("feedback: %+v", fb)
	}
	if got := ofType[protocol.CommandFeedbackMsg](t, f.p2, protocol.TypeCommandFeedback); len(got) != 0 {
		t.Fatalf("team 2 saw team 1 feedback: %+v", got)
	}
	st := lastState(t, f.p1)
	if !st.AICoordination.WaitingForSynchronizedStart || !slices.Equal(st.AICoordination.TeamsAwaitingCommands, []int{2}) {
		t.Fatalf("aiCoordination: %+v", st.AICoordination)
	}
	for _, u := range f.m.Units() {
		if !u.WaitingForFirstCommand {
			t.Fatalf("%s released before team 2 commanded", u.ID)
		}
	}

	f.p1.reset()
	f.p2.reset()
	f.m.SubmitCommand(CommandRequest{RequestID: "r2", PeerID: "p2", Team: 2, CommandText: "attack"})
	stepUntil(t, f.m, func() bool {
		return len(ofType[protocol.CommandFeedbackMsg](t, f.p2, protocol.TypeCommandFeedback)) == 1
	})

	fb = ofType[protocol.CommandFeedbackMsg](t, f.p2, protocol.TypeCommandFeedback)[0]
	if fb.StatusTag != aicmd.StatusReleased {
		t.Fatalf("feedback: %+v", fb)
	}
	for _, p := range []*fakePeer{f.p1, f.p2} {
		st := lastState(t, p)
		if st.AICoordination.WaitingForSynchronizedStart || len(st.AICoordination.TeamsAwaitingCommands) != 0 {
			t.Fatalf("%s aiCoordination after release: %+v", p.id, st.AICoordination)
		}
		for _, u := range st.Units {
			if u.WaitingForFirstCommand {
				t.Fatalf("%s sees %s still waiting", p.id, u.ID)
			}
		}
	}
}

func TestBroadcast_DeltaGoalDisclosure(t *testing.T) {
	f := newFixture(t, nearMap(), testTuning(), []int{1, 2})

	f.m.Advance(dt)
	first := lastState(t, f.p1)
	for _, u := range first.Units {
		if u.TeamID == 1 && u.StrategicGoal == nil {
			t.Fatalf("own unit %s missing goal on first observation", u.ID)
		}
	}

	f.m.Advance(dt)
	for _, u := range lastState(t, f.p1).Units {
		if u.StrategicGoal != nil || u.AttackSequenceIndex != nil {
			t.Fatalf("unit %s repeated unchanged goal", u.ID)
		}
	}

	f.p1.reset()
	f.m.SubmitCommand(CommandRequest{PeerID: "p1", Team: 1, CommandText: "attack"})
	stepUntil(t, f.m, func() bool {
		return len(ofType[protocol.CommandFeedbackMsg](t, f.p1, protocol.TypeCommandFeedback)) == 1
	})

	changed := lastState(t, f.p1)
	n := 0
	for _, u := range changed.Units {
		if u.TeamID != 1 || u.StrategicGoal == nil {
			continue
		}
		n++
		if *u.StrategicGoal != aicmd.GoalAttack || !slices.Equal(u.AttackSequence, []string{"CP1"}) || *u.AttackSequenceIndex != 0 {
			t.Fatalf("changed goal for %s: %+v", u.ID, u)
		}
	}
	if n == 0 {
		t.Fatalf("no goal disclosed on the change tick")
	}

	f.m.Advance(dt)
	for _, u := range lastState(t, f.p1).Units {
		if u.StrategicGoal != nil {
			t.Fatalf("unit %s goal disclosed again without change", u.ID)
		}
	}
}

func TestBroadcast_EnemyUnitsNeverCarryGoals(t *testing.T) {
	f := newFixture(t, nearMap(), testTuning(), []int{1, 2})
	f.m.SubmitCommand(CommandRequest{PeerID: "p2", Team: 2, CommandText: "attack"})
	stepUntil(t, f.m, func() bool {
		return len(ofType[protocol.CommandFeedbackMsg](t, f.p2, protocol.TypeCommandFeedback)) == 1
	})

	sawEnemy := false
	for _, st := range ofType[protocol.StateMsg](t, f.p1, protocol.TypeState) {
		for _, u := range st.Units {
			if u.TeamID == 1 {
				continue
			}
			sawEnemy = true
			if u.StrategicGoal != nil || u.AttackSequence != nil || u.AttackSequenceIndex != nil || u.PlanSummary != "" {
				t.Fatalf("enemy unit %s leaked goal: %+v", u.ID, u)
			}
		}
	}
	if !sawEnemy {
		t.Fatalf("expected visible enemy units on the near map")
	}
}

func TestSnapshot_FogHidesDistantEnemies(t *testing.T) {
	f := newFixture(t, farMap(), testTuning(), []int{1, 2})
	f.m.Advance(dt)
	st := lastState(t, f.p1)
	own := 0
	for _, u := range st.Units {
		if u.TeamID != 1 {
			t.Fatalf("distant enemy %s disclosed", u.ID)
		}
		own++
	}
	if own != len(f.m.Registry().Team(1)) {
		t.Fatalf("own units=%d", own)
	}
	if len(st.ControlPoints) != 3 {
		t.Fatalf("control points are always disclosed, got %d", len(st.ControlPoints))
	}
	meta := st.VisibilityGridMeta
	if meta.Width*meta.Height != len(st.VisibilityGrid) || meta.CellSize != 4 {
		t.Fatalf("grid meta %+v len=%d", meta, len(st.VisibilityGrid))
	}
}

func TestBroadcast_SkipsUnresolvedTeamAndPrunesClosedPeer(t *testing.T) {
	f := newFixture(t, nearMap(), testTuning(), []int{1, 2})
	f.roster.unavailable[2] = true
	f.p1.closed = true

	res := f.m.Advance(dt)
	if !slices.Equal(res.Pruned, []string{"p1"}) {
		t.Fatalf("pruned=%v", res.Pruned)
	}
	if got := ofType[protocol.StateMsg](t, f.p2, protocol.TypeState); len(got) != 0 {
		t.Fatalf("unresolved team received %d states", len(got))
	}

	f.roster.unavailable[2] = false
	f.m.Advance(dt)
	if got := ofType[protocol.StateMsg](t, f.p2, protocol.TypeState); len(got) != 1 {
		t.Fatalf("team 2 should recover next interval, got %d", len(got))
	}
}

func TestBroadcast_EveryNTicks(t *testing.T) {
	tun := testTuning()
	tun.BroadcastEveryTicks = 3
	f := newFixture(t, nearMap(), tun, []int{1, 2})
	for i := 0; i < 9; i++ {
		f.m.Advance(dt)
	}
	if got := len(ofType[protocol.StateMsg](t, f.p1, protocol.TypeState)); got != 3 {
		t.Fatalf("states=%d want 3", got)
	}
}

func controlMap() maps.Map {
	m := farMap()
	m.ControlPoints = []maps.PointDef{
		{ID: "HOME", Pos: m.Bases[0].Anchor, CaptureRadius: 12, VisionRadius: 6},
		{ID: "FAR", Pos: geom.Vec3{X: 128, Z: 32}, CaptureRadius: 4, VisionRadius: 6},
	}
	return m
}

func TestAdvance_ControlVictoryEndsOnce(t *testing.T) {
	tun := testTuning()
	tun.ControlPoints.CaptureRate = 1
	tun.ControlPoints.VictoryPoints = 1
	f := newFixture(t, controlMap(), tun, nil)

	var out *Outcome
	for i := 0; i < 200 && out == nil; i++ {
		out = f.m.Advance(0.1).Outcome
	}
	if out == nil {
		t.Fatalf("no victory")
	}
	if out.WinningTeam != 1 || out.VictoryType != protocol.VictoryControl || out.FinalControlCounts[1] != 1 {
		t.Fatalf("outcome: %+v", out)
	}
	if f.m.State() != Ended {
		t.Fatalf("state=%v", f.m.State())
	}
	tick := f.m.Tick()
	for i := 0; i < 5; i++ {
		if res := f.m.Advance(0.1); res.Outcome != nil {
			t.Fatalf("victory re-fired")
		}
	}
	if f.m.Tick() != tick {
		t.Fatalf("ended match kept ticking")
	}
	if _, ok := f.m.Tracker().CheckVictory(); ok {
		t.Fatalf("tracker re-declared victory")
	}
}

func turretTuning() tuning.Tuning {
	tun := testTuning()
	tun.Squad.Archetypes = []string{"TURRET"}
	return tun
}

func TestAdvance_EliminationAndDraw(t *testing.T) {
	f := newFixture(t, farMap(), turretTuning(), nil)
	shooter := f.m.Registry().Team(1)[0].ID
	for _, u := range f.m.Registry().Team(2) {
		if err := f.m.Registry().Kill(u.ID, shooter); err != nil {
			t.Fatal(err)
		}
	}
	out := f.m.Advance(dt).Outcome
	if out == nil || out.WinningTeam != 1 || out.VictoryType != protocol.VictoryElimination {
		t.Fatalf("outcome: %+v", out)
	}
	// Destroyed turrets are removed from the registry but still count.
	if out.Deaths[2] != 1 || out.Kills[1] != 1 || out.Deaths[1] != 0 {
		t.Fatalf("kills %v deaths %v", out.Kills, out.Deaths)
	}

	g := newFixture(t, farMap(), turretTuning(), nil)
	for _, u := range g.m.Units() {
		_ = g.m.Registry().Kill(u.ID, "")
	}
	out = g.m.Advance(dt).Outcome
	if out == nil || out.WinningTeam != 0 || out.VictoryType != protocol.VictoryDraw {
		t.Fatalf("draw outcome: %+v", out)
	}
}

func TestAbandon(t *testing.T) {
	f := newFixture(t, farMap(), testTuning(), nil)
	out := f.m.Abandon()
	if out == nil || out.VictoryType != protocol.VictoryAbandoned || f.m.State() != Ended {
		t.Fatalf("abandon: %+v", out)
	}
	if f.m.Abandon() != nil {
		t.Fatalf("second abandon should be nil")
	}
}

func TestDirectSpawn(t *testing.T) {
	f := newFixture(t, farMap(), testTuning(), []int{1, 2})
	before := f.m.Registry().Len()

	f.m.SubmitSpawn(SpawnRequest{PeerID: "p1", Team: 1, Archetype: "HEAVY"})
	f.m.Advance(dt)
	if got := f.m.Ledger().Pool(1, "SUPPLY"); got != 80 {
		t.Fatalf("pool=%d want 80", got)
	}
	if f.m.Registry().Len() != before+1 {
		t.Fatalf("unit not spawned")
	}

	f.m.SubmitSpawn(SpawnRequest{PeerID: "p1", Team: 1, Archetype: "HEAVY"})
	f.m.SubmitSpawn(SpawnRequest{PeerID: "p1", Team: 1, Archetype: "DRAGON"})
	f.m.SubmitSpawn(SpawnRequest{PeerID: "p1", Team: 1, Archetype: "MINE"})
	f.m.Advance(dt)

	res := ofType[protocol.SpawnResultMsg](t, f.p1, protocol.TypeSpawnResult)
	if len(res) != 4 {
		t.Fatalf("results=%d", len(res))
	}
	if !res[0].Success || res[0].UnitID == "" {
		t.Fatalf("first spawn: %+v", res[0])
	}
	if res[1].Success || res[1].Code != protocol.ErrNoResource {
		t.Fatalf("unaffordable spawn: %+v", res[1])
	}
	if res[2].Success || res[2].Code != protocol.ErrInvalidTarget {
		t.Fatalf("unknown archetype: %+v", res[2])
	}
	if !res[3].Success || len(f.m.Registry().Mines()) != 1 {
		t.Fatalf("mine: %+v", res[3])
	}
	if got := f.m.Ledger().Pool(1, "SUPPLY"); got != 55 {
		t.Fatalf("pool=%d want 55 after mine", got)
	}

	spawned, _ := f.m.Registry().Get(res[0].UnitID)
	if !spawned.WaitingForFirstCommand {
		t.Fatalf("units spawned before release must wait")
	}
	for _, u := range f.m.Registry().Team(1) {
		if u.ID != spawned.ID && geom.DistSqXZ(u.Pos, spawned.Pos) < 1 {
			t.Fatalf("spawn overlapped %s", u.ID)
		}
	}
}

func TestSpawnPosition_FallbackWithoutBase(t *testing.T) {
	mp := farMap()
	mp.Bases = nil
	f := newFixture(t, mp, testTuning(), nil)
	for _, u := range f.m.Registry().Team(2) {
		if u.Pos.X < 200 {
			t.Fatalf("team 2 fallback spawn should be in the far corner, got %+v", u.Pos)
		}
	}
}

func TestCancelPeerDropsQueuedRequests(t *testing.T) {
	f := newFixture(t, farMap(), testTuning(), []int{1, 2})
	f.m.SubmitSpawn(SpawnRequest{PeerID: "p1", Team: 1, Archetype: "RIFLEMAN"})
	f.m.SubmitCommand(CommandRequest{PeerID: "p1", Team: 1, CommandText: "attack"})
	f.m.SubmitSpawn(SpawnRequest{PeerID: "p2", Team: 2, Archetype: "RIFLEMAN"})
	f.m.CancelPeer("p1")
	before := f.m.Registry().Len()
	f.m.Advance(dt)
	if f.m.Registry().Len() != before+1 {
		t.Fatalf("expected only p2's spawn")
	}
	if got := f.m.Ledger().Pool(1, "SUPPLY"); got != 200 {
		t.Fatalf("cancelled spawn charged team 1: %d", got)
	}
}

func TestCapturedPointRegistersIncome(t *testing.T) {
	tun := testTuning()
	tun.ControlPoints.CaptureRate = 1
	f := newFixture(t, controlMap(), tun, nil)
	sink := &recordingSink{}
	f.m.cfg.Events = sink
	for i := 0; i < 20; i++ {
		f.m.Advance(0.1)
	}
	if p, _ := f.m.Tracker().Point("HOME"); p.Owner != 1 {
		t.Fatalf("HOME owner=%d", p.Owner)
	}
	if got := f.m.Ledger().NetRate(1, "SUPPLY"); got != tun.ControlPoints.Income["SUPPLY"] {
		t.Fatalf("net rate=%v", got)
	}
	if n := sink.count("CAPTURED"); n != 1 {
		t.Fatalf("CAPTURED events=%d", n)
	}
	for _, e := range sink.events {
		if e.Session != "s1" {
			t.Fatalf("event without session: %+v", e)
		}
	}
}

type recordingSink struct{ events []Event }

func (s *recordingSink) WriteEvent(e Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) count(typ string) int {
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var n int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					n += dp.Value
				}
			}
		}
	}
	return n
}

func TestAdvance_RecordsTelemetry(t *testing.T) {
	f := newFixture(t, nearMap(), testTuning(), []int{1, 2})
	p := telemetry.NewProvider()
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	in, err := p.Instruments()
	if err != nil {
		t.Fatalf("Instruments: %v", err)
	}
	f.m.cfg.Telemetry = in

	for i := 0; i < 3; i++ {
		f.m.Advance(dt)
	}
	f.m.SubmitCommand(CommandRequest{PeerID: "p1", Team: 1, CommandText: "attack"})
	stepUntil(t, f.m, func() bool {
		return len(ofType[protocol.CommandFeedbackMsg](t, f.p1, protocol.TypeCommandFeedback)) == 1
	})

	rm, err := p.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	ticks := counterTotal(rm, "skirmish.match.ticks")
	if ticks < 4 || uint64(ticks) != f.m.Tick() {
		t.Fatalf("ticks counter %d, match tick %d", ticks, f.m.Tick())
	}
	if got := counterTotal(rm, "skirmish.match.broadcasts"); got != 2*ticks {
		t.Fatalf("broadcasts %d, want %d", got, 2*ticks)
	}
	if got := counterTotal(rm, "skirmish.match.bytes_sent"); got <= 0 {
		t.Fatalf("bytes_sent %d", got)
	}
	if got := counterTotal(rm, "skirmish.ai.commands"); got != 1 {
		t.Fatalf("commands %d", got)
	}
}
