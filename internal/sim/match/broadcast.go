package match

import (
	"encoding/json"
	"errors"
	"slices"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/geom"
	"skirmish.ai/internal/sim/units"
)

// goalEntry is the last goal state disclosed for a unit.
type goalEntry struct {
	goal  string
	seq   []string
	index int
}

func (g goalEntry) equal(u *units.Unit) bool {
	return g.goal == u.StrategicGoal && g.index == u.AttackIndex && slices.Equal(g.seq, u.AttackSequence)
}

// broadcast sends one filtered snapshot to every peer of each team, then
// clears the coordinator's goal-changed markers.
func (m *Match) broadcast() {
	if m.cfg.Roster == nil {
		return
	}
	for _, team := range Teams {
		peers, ok := m.cfg.Roster.TeamPeers(team)
		if !ok {
			m.log.Debug().Int("team", team).Msg("peer list unavailable; skipping broadcast")
			continue
		}
		if len(peers) == 0 {
			continue
		}
		b, err := json.Marshal(m.Snapshot(team))
		if err != nil {
			m.log.Error().Err(err).Int("team", team).Msg("marshal state")
			continue
		}
		for _, p := range peers {
			if err := p.Send(b); errors.Is(err, ErrPeerClosed) {
				m.prune(p.ID())
			}
		}
		m.cfg.Telemetry.Broadcast(m.cfg.SessionID, team, len(b)*len(peers))
	}
	m.coord.ClearGoalChanged()
}

// Snapshot builds the state a team may observe and updates the goal delta
// cache for its units. Calling it counts as a disclosure.
func (m *Match) Snapshot(team int) protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:          protocol.TypeState,
		Tick:          m.tick,
		Units:         []protocol.UnitState{},
		Mines:         []protocol.MineState{},
		ControlPoints: []protocol.ControlPointState{},
		AICoordination: protocol.AICoordination{
			WaitingForSynchronizedStart: m.coord.WaitingForSynchronizedStart(),
			TeamsAwaitingCommands:       m.coord.TeamsAwaitingCommands(),
		},
	}

	for _, u := range m.reg.All() {
		own := u.Team == team
		if !own && !m.enemyVisible(team, u) {
			continue
		}
		us := protocol.UnitState{
			ID:                     u.ID,
			Archetype:              u.Archetype,
			TeamID:                 u.Team,
			Position:               wireVec(u.Pos),
			Velocity:               wireVec(u.Velocity),
			OrientationBasis:       geom.Basis(u.Yaw),
			Health:                 u.Health,
			MaxHealth:              u.MaxHealth,
			IsDead:                 u.Dead,
			IsRespawning:           u.Respawning,
			RespawnTimer:           u.RespawnTimer,
			WaitingForFirstCommand: u.WaitingForFirstCommand,
		}
		if own {
			us.PlanSummary = u.PlanSummary
			m.discloseGoal(u, &us)
		}
		msg.Units = append(msg.Units, us)
	}

	for _, mine := range m.reg.Mines() {
		if mine.Team != team && (mine.Stealthed || !m.vis.IsVisible(team, mine.Pos)) {
			continue
		}
		msg.Mines = append(msg.Mines, protocol.MineState{ID: mine.ID, TeamID: mine.Team, Position: wireVec(mine.Pos)})
	}

	for _, p := range m.tracker.Points() {
		msg.ControlPoints = append(msg.ControlPoints, protocol.ControlPointState{
			ID:           p.ID,
			Name:         p.Name,
			TeamID:       p.Owner,
			CaptureValue: p.Value,
			Position:     wireVec(p.Pos),
		})
	}

	bal := m.ledger.Balances(team)
	for _, typ := range m.cfg.Tuning.ResourceTypes() {
		b, ok := bal[typ]
		if !ok {
			continue
		}
		msg.Resources = append(msg.Resources, protocol.ResourceState{
			Type:        typ,
			Pool:        b.Pool,
			Cap:         b.Cap,
			NetRate:     b.NetRate,
			RollingRate: b.RollingRate,
		})
	}

	meta := m.vis.Meta()
	msg.VisibilityGrid = m.vis.Payload(team)
	msg.VisibilityGridMeta = protocol.GridMeta{CellSize: meta.CellSize, Width: meta.Width, Height: meta.Height}
	return msg
}

func (m *Match) enemyVisible(team int, u *units.Unit) bool {
	if u.Dead || u.Stealthed || u.Untargetable {
		return false
	}
	return m.vis.IsVisible(team, u.Pos)
}

// discloseGoal adds the goal fields when the unit is seen for the first time
// or its goal changed since the last disclosure.
func (m *Match) discloseGoal(u *units.Unit, us *protocol.UnitState) {
	prev, seen := m.sentGoals[u.ID]
	if seen && prev.equal(u) && !m.coord.IsGoalChanged(u.ID) {
		return
	}
	goal := u.StrategicGoal
	idx := u.AttackIndex
	us.StrategicGoal = &goal
	us.AttackSequence = append([]string{}, u.AttackSequence...)
	us.AttackSequenceIndex = &idx
	m.sentGoals[u.ID] = goalEntry{goal: goal, seq: us.AttackSequence, index: idx}
}

func wireVec(v geom.Vec3) protocol.Vec3 { return protocol.Vec3{X: v.X, Y: v.Y, Z: v.Z} }
