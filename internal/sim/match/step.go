package match

import (
	"time"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/aicmd"
	"skirmish.ai/internal/sim/controlpoints"
	"skirmish.ai/internal/sim/geom"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/visibility"
)

// StepResult reports what the lobby must act on after a tick.
type StepResult struct {
	// Pruned peers failed a send and must leave the session.
	Pruned []string
	// Outcome is set on the tick the match ends, and only then.
	Outcome *Outcome
}

// Advance runs one tick of dt seconds. It is a no-op unless the match is
// active.
func (m *Match) Advance(dt float64) StepResult {
	if m.state != Active || dt <= 0 {
		return StepResult{}
	}
	start := time.Now()
	m.pruned = m.pruned[:0]

	m.drainInbox()

	m.reg.Tick(dt)
	m.coord.AdvanceCursors(m.pointOwner)
	m.reg.Move(dt, m.destination)
	m.clampPositions()

	if m.combat != nil {
		for _, d := range m.combat.Resolve(dt, m.reg.All(), m.vis.IsVisible) {
			if _, err := m.reg.ApplyDamage(d.Target, d.Amount, d.Attacker); err != nil {
				m.log.Debug().Err(err).Msg("combat target vanished")
			}
		}
		m.detonateMines()
	}

	m.ledger.Tick(dt)
	m.refreshVisibility()
	m.tracker.Update(dt, m.occupants())
	m.elapsed += dt

	var res StepResult
	if v, ok := m.tracker.CheckVictory(); ok {
		m.end(v.Team, protocol.VictoryControl)
	} else if out := m.reg.Elimination(Teams); len(out) > 0 {
		switch len(out) {
		case len(Teams):
			m.end(0, protocol.VictoryDraw)
		default:
			m.end(otherTeam(out[0]), protocol.VictoryElimination)
		}
	}

	m.tick++
	every := uint64(m.cfg.Tuning.BroadcastEveryTicks)
	if every == 0 {
		every = 1
	}
	if m.state == Ended || m.tick%every == 0 {
		m.broadcast()
	}

	if m.state == Ended {
		res.Outcome = m.outcome
	}
	res.Pruned = append([]string(nil), m.pruned...)
	m.cfg.Telemetry.Tick(m.cfg.SessionID, float64(time.Since(start).Microseconds())/1000.0)
	return res
}

func otherTeam(team int) int {
	if team == controlpoints.Team1 {
		return controlpoints.Team2
	}
	return controlpoints.Team1
}

func (m *Match) destination(u *units.Unit) (geom.Vec3, bool) {
	return aicmd.Destination(u, func(id string) (geom.Vec3, bool) {
		p, ok := m.tracker.Point(id)
		if !ok {
			return geom.Vec3{}, false
		}
		return p.Pos, true
	})
}

// clampPositions keeps move targets outside the map from walking units off
// the playable area.
func (m *Match) clampPositions() {
	for _, u := range m.reg.All() {
		if !m.cfg.Map.Contains(u.Pos) {
			u.Pos = m.cfg.Map.ClampInside(u.Pos)
		}
	}
}

func (m *Match) occupants() []controlpoints.Occupant {
	var out []controlpoints.Occupant
	for _, u := range m.reg.All() {
		if u.Dead {
			continue
		}
		out = append(out, controlpoints.Occupant{Team: u.Team, Pos: u.Pos})
	}
	return out
}

func (m *Match) refreshVisibility() {
	all := m.reg.All()
	us := make([]visibility.UnitSource, 0, len(all))
	for _, u := range all {
		us = append(us, visibility.UnitSource{
			Team:        u.Team,
			Pos:         u.Pos,
			VisionRange: u.VisionRange,
			Alive:       !u.Dead,
			Stealthed:   u.Stealthed,
		})
	}
	pts := m.tracker.Points()
	ps := make([]visibility.PointSource, 0, len(pts))
	for _, p := range pts {
		ps = append(ps, visibility.PointSource{Owner: p.Owner, Pos: p.Pos, VisionRadius: p.VisionRadius})
	}
	m.vis.Update(us, ps)
}
