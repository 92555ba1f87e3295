package aicmd

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"skirmish.ai/internal/sim/geom"
)

func testView() WorldView {
	return WorldView{
		Team: 1,
		Base: geom.Vec3{X: 0},
		Units: []UnitInfo{
			{ID: "U1", Team: 1, Alive: true},
			{ID: "U2", Team: 1, Alive: true},
			{ID: "U3", Team: 1, Static: true, Alive: true},
			{ID: "U4", Team: 2, Alive: true},
		},
		Points: []PointInfo{
			{ID: "CP1", Name: "Alpha", Pos: geom.Vec3{X: 10}},
			{ID: "CP2", Name: "Bravo", Pos: geom.Vec3{X: 50}, Owner: 1},
			{ID: "CP3", Name: "Charlie", Pos: geom.Vec3{X: 90}, Owner: 2},
		},
	}
}

func TestKeywordPlanner_AttackNamedPointsInOrder(t *testing.T) {
	as, summary, err := KeywordPlanner{}.Plan(context.Background(), Request{Team: 1, CommandText: "Take Charlie, then alpha!"}, testView())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(as) != 2 {
		t.Fatalf("static and enemy units must be excluded: %+v", as)
	}
	if !reflect.DeepEqual(as[0].AttackSequence, []string{"CP3", "CP1"}) || as[0].Goal != GoalAttack {
		t.Fatalf("assignment: %+v", as[0])
	}
	if summary != "attack Charlie, then Alpha with 2 units" {
		t.Fatalf("summary: %q", summary)
	}
}

func TestKeywordPlanner_AttackWithoutTargetsPicksUnownedNearestFirst(t *testing.T) {
	as, _, err := KeywordPlanner{}.Plan(context.Background(), Request{Team: 1, CommandText: "attack", UnitIDs: []string{"U2", "U4"}}, testView())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(as) != 1 || as[0].UnitID != "U2" {
		t.Fatalf("selection: %+v", as)
	}
	if !reflect.DeepEqual(as[0].AttackSequence, []string{"CP1", "CP3"}) {
		t.Fatalf("sequence: %v", as[0].AttackSequence)
	}
}

func TestKeywordPlanner_DefendAndRetreat(t *testing.T) {
	as, _, err := KeywordPlanner{}.Plan(context.Background(), Request{Team: 1, CommandText: "hold the line"}, testView())
	if err != nil || !reflect.DeepEqual(as[0].AttackSequence, []string{"CP2"}) || as[0].Goal != GoalDefend {
		t.Fatalf("defend: %+v err=%v", as, err)
	}
	as, _, err = KeywordPlanner{}.Plan(context.Background(), Request{Team: 1, CommandText: "Fall back!"}, testView())
	if err != nil || as[0].Goal != GoalRetreat || as[0].MoveTarget == nil {
		t.Fatalf("retreat: %+v err=%v", as, err)
	}
}

func TestKeywordPlanner_Failures(t *testing.T) {
	if _, _, err := (KeywordPlanner{}).Plan(context.Background(), Request{Team: 1, CommandText: "sing a song"}, testView()); !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("expected ErrUnrecognized, got %v", err)
	}
	if _, _, err := (KeywordPlanner{}).Plan(context.Background(), Request{Team: 1, CommandText: "attack", UnitIDs: []string{"U4"}}, testView()); !errors.Is(err, ErrNoUnits) {
		t.Fatalf("expected ErrNoUnits, got %v", err)
	}
}

func TestDispatch_DeliversTimeout(t *testing.T) {
	slow := PlannerFunc(func(ctx context.Context, _ Request, _ WorldView) ([]Assignment, string, error) {
		<-ctx.Done()
		return nil, "", nil
	})
	got := make(chan Result, 1)
	Dispatch(context.Background(), slow, Request{RequestID: "r1"}, WorldView{}, 10*time.Millisecond, func(r Result) { got <- r })
	select {
	case r := <-got:
		if !errors.Is(r.Err, ErrPlanTimeout) || r.Request.RequestID != "r1" {
			t.Fatalf("result: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("dispatch never delivered")
	}
}
