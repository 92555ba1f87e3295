package aicmd

import (
	"fmt"
	"sort"

	"skirmish.ai/internal/sim/geom"
	"skirmish.ai/internal/sim/units"
)

// Coordinator applies resolved commands to units and owns the synchronized
// start gate. It is the only writer of the goal, sequence and waiting fields.
type Coordinator struct {
	reg *units.Registry

	tracked  []int
	awaiting map[int]bool
	released bool

	dirty map[string]struct{}
}

// NewCoordinator gates the given teams. With no tracked teams the gate is
// open from the start.
func NewCoordinator(reg *units.Registry, trackedTeams []int) *Coordinator {
	c := &Coordinator{
		reg:      reg,
		awaiting: map[int]bool{},
		dirty:    map[string]struct{}{},
	}
	for _, t := range trackedTeams {
		if !c.awaiting[t] {
			c.tracked = append(c.tracked, t)
			c.awaiting[t] = true
		}
	}
	sort.Ints(c.tracked)
	if len(c.tracked) == 0 {
		c.released = true
	}
	return c
}

// WaitingForSynchronizedStart is true until the one-time release.
func (c *Coordinator) WaitingForSynchronizedStart() bool { return !c.released }

// TeamsAwaitingCommands lists tracked teams that have not yet had a command
// applied, ascending.
func (c *Coordinator) TeamsAwaitingCommands() []int {
	out := []int{}
	for _, t := range c.tracked {
		if c.awaiting[t] {
			out = append(out, t)
		}
	}
	return out
}

// SpawnWaiting tells the spawner whether new units start blocked.
func (c *Coordinator) SpawnWaiting() bool { return !c.released }

// Apply writes a planner result. Failures never touch the gate.
func (c *Coordinator) Apply(res Result) Feedback {
	req := res.Request
	fb := Feedback{PeerID: req.PeerID, RequestID: req.RequestID}
	if res.Err != nil {
		fb.StatusTag = StatusFailed
		fb.Summary = res.Err.Error()
		fb.UnitIDs = append([]string(nil), req.UnitIDs...)
		return fb
	}

	var applied []string
	for _, a := range res.Assignments {
		u, ok := c.reg.Get(a.UnitID)
		if !ok || u.Team != req.Team {
			continue
		}
		u.StrategicGoal = a.Goal
		u.AttackSequence = append([]string(nil), a.AttackSequence...)
		u.AttackIndex = 0
		u.PlanSummary = a.PlanSummary
		if a.MoveTarget != nil {
			mt := *a.MoveTarget
			u.MoveTarget = &mt
		} else {
			u.MoveTarget = nil
		}
		c.dirty[u.ID] = struct{}{}
		applied = append(applied, u.ID)
	}
	if len(applied) == 0 {
		fb.StatusTag = StatusFailed
		fb.Summary = fmt.Errorf("%w for team %d", ErrNoUnits, req.Team).Error()
		fb.UnitIDs = append([]string(nil), req.UnitIDs...)
		return fb
	}

	c.awaiting[req.Team] = false
	released := c.maybeRelease()

	fb.Success = true
	fb.Summary = res.Summary
	fb.UnitIDs = applied
	switch {
	case released:
		fb.StatusTag = StatusReleased
	case !c.released:
		fb.StatusTag = StatusAwaitingOthers
	default:
		fb.StatusTag = StatusApplied
	}
	return fb
}

// Untrack stops gating on a team that can no longer command, such as one
// whose last player left. It reports whether this released the gate.
func (c *Coordinator) Untrack(team int) bool {
	i := -1
	for j, t := range c.tracked {
		if t == team {
			i = j
			break
		}
	}
	if i < 0 {
		return false
	}
	c.tracked = append(c.tracked[:i], c.tracked[i+1:]...)
	delete(c.awaiting, team)
	return c.maybeRelease()
}

// maybeRelease clears every waiting unit once all tracked teams have
// commanded. It runs at most once per match.
func (c *Coordinator) maybeRelease() bool {
	if c.released {
		return false
	}
	for _, t := range c.tracked {
		if c.awaiting[t] {
			return false
		}
	}
	for _, u := range c.reg.All() {
		u.WaitingForFirstCommand = false
	}
	c.released = true
	return true
}

// AdvanceCursors moves each unit's attack cursor past points its team owns.
func (c *Coordinator) AdvanceCursors(owner func(pointID string) int) {
	for _, u := range c.reg.All() {
		if u.Dead {
			continue
		}
		moved := false
		for {
			id, ok := u.CurrentTarget()
			if !ok || owner(id) != u.Team {
				break
			}
			u.AttackIndex++
			moved = true
		}
		if moved {
			c.dirty[u.ID] = struct{}{}
		}
	}
}

// Destination resolves where a unit should walk: an explicit move target
// first, then the current attack-sequence point.
func Destination(u *units.Unit, pointPos func(id string) (geom.Vec3, bool)) (geom.Vec3, bool) {
	if u.MoveTarget != nil {
		return *u.MoveTarget, true
	}
	if id, ok := u.CurrentTarget(); ok {
		return pointPos(id)
	}
	// Defenders hold the last point of their sequence.
	if n := len(u.AttackSequence); n > 0 && u.StrategicGoal == GoalDefend {
		return pointPos(u.AttackSequence[n-1])
	}
	return geom.Vec3{}, false
}

// IsGoalChanged reports and ClearGoalChanged resets the per-unit markers
// used by the broadcast delta.
func (c *Coordinator) IsGoalChanged(unitID string) bool {
	_, ok := c.dirty[unitID]
	return ok
}

func (c *Coordinator) ClearGoalChanged() {
	for id := range c.dirty {
		delete(c.dirty, id)
	}
}
