package aicmd

import (
	"context"
	"errors"

	"skirmish.ai/internal/sim/geom"
)

var (
	ErrUnrecognized = errors.New("command not understood")
	ErrNoUnits      = errors.New("no eligible units")
	ErrPlanTimeout  = errors.New("planner timed out")
)

// Status tags carried by command feedback.
const (
	StatusApplied        = "APPLIED"
	StatusAwaitingOthers = "AWAITING_OTHER_TEAMS"
	StatusReleased       = "RELEASED"
	StatusFailed         = "FAILED"
)

// Goals written into Unit.StrategicGoal.
const (
	GoalAttack  = "ATTACK"
	GoalDefend  = "DEFEND"
	GoalRetreat = "RETREAT"
)

// Request is a command submission from one peer. Empty UnitIDs addresses the
// whole team.
type Request struct {
	RequestID   string
	SessionID   string
	PeerID      string
	Team        int
	CommandText string
	UnitIDs     []string
}

// Assignment is one unit's share of a resolved plan.
type Assignment struct {
	UnitID         string
	Goal           string
	AttackSequence []string
	MoveTarget     *geom.Vec3
	PlanSummary    string
}

// Result is what a planner produced for a Request.
type Result struct {
	Request     Request
	Assignments []Assignment
	Summary     string
	Err         error
}

// Feedback goes back to the submitting peer only.
type Feedback struct {
	PeerID    string
	RequestID string
	Success   bool
	Summary   string
	StatusTag string
	UnitIDs   []string
}

// UnitInfo and PointInfo are copies handed to planners, so planning can run
// off the simulation goroutine without sharing state.
type UnitInfo struct {
	ID        string
	Team      int
	Archetype string
	Pos       geom.Vec3
	Alive     bool
	Static    bool
}

type PointInfo struct {
	ID    string
	Name  string
	Pos   geom.Vec3
	Owner int
}

type WorldView struct {
	Team   int
	Base   geom.Vec3
	Units  []UnitInfo
	Points []PointInfo
}

// Planner resolves natural-language text into per-unit assignments.
type Planner interface {
	Plan(ctx context.Context, req Request, view WorldView) ([]Assignment, string, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, req Request, view WorldView) ([]Assignment, string, error)

func (f PlannerFunc) Plan(ctx context.Context, req Request, view WorldView) ([]Assignment, string, error) {
	return f(ctx, req, view)
}
