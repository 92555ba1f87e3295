package match

import (
	"encoding/json"
	"errors"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/aicmd"
	"skirmish.ai/internal/sim/controlpoints"
)

// CommandRequest is a natural-language command from one peer. Empty UnitIDs
// addresses the whole team.
type CommandRequest struct {
	RequestID   string
	PeerID      string
	Team        int
	CommandText string
	UnitIDs     []string
}

// SpawnRequest bypasses the AI coordinator and spawns one unit near base.
type SpawnRequest struct {
	PeerID    string
	Team      int
	Archetype string
}

// SubmitCommand and SubmitSpawn queue a request for the next tick.
func (m *Match) SubmitCommand(r CommandRequest) { m.commands = append(m.commands, r) }
func (m *Match) SubmitSpawn(r SpawnRequest)     { m.spawns = append(m.spawns, r) }

// CancelPeer drops the peer's queued requests. Already-applied changes stay.
func (m *Match) CancelPeer(peerID string) {
	cmds := m.commands[:0]
	for _, c := range m.commands {
		if c.PeerID != peerID {
			cmds = append(cmds, c)
		}
	}
	m.commands = cmds
	spawns := m.spawns[:0]
	for _, s := range m.spawns {
		if s.PeerID != peerID {
			spawns = append(spawns, s)
		}
	}
	m.spawns = spawns
}

// TeamLeft is called when a team has no players left. The match goes on for
// the other side, which must not stay blocked on the synchronized start.
func (m *Match) TeamLeft(team int) {
	released := m.coord.Untrack(team)
	m.record(Event{Type: "TEAM_LEFT", Team: team, Data: map[string]any{"released": released}})
	if released {
		m.log.Info().Int("team", team).Msg("synchronized start released after team left")
	}
}

// deliver hands a planner result back to the tick goroutine.
func (m *Match) deliver(res aicmd.Result) {
	select {
	case m.results <- res:
	case <-m.ctx.Done():
	}
}

// drainInbox applies finished plans first, then starts planning for newly
// queued commands and resolves spawns.
func (m *Match) drainInbox() {
	for drained := false; !drained; {
		select {
		case res := <-m.results:
			m.applyResult(res)
		default:
			drained = true
		}
	}

	for _, c := range m.commands {
		req := aicmd.Request{
			RequestID:   c.RequestID,
			SessionID:   m.cfg.SessionID,
			PeerID:      c.PeerID,
			Team:        c.Team,
			CommandText: c.CommandText,
			UnitIDs:     append([]string(nil), c.UnitIDs...),
		}
		aicmd.Dispatch(m.ctx, m.cfg.Planner, req, m.worldView(c.Team), m.cfg.PlanTimeout, m.deliver)
	}
	m.commands = m.commands[:0]

	for _, s := range m.spawns {
		m.handleSpawn(s)
	}
	m.spawns = m.spawns[:0]
}

func (m *Match) applyResult(res aicmd.Result) {
	fb := m.coord.Apply(res)
	m.cfg.Telemetry.Command(fb.StatusTag)
	m.record(Event{Type: "COMMAND", Team: res.Request.Team, Data: map[string]any{
		"peer":   res.Request.PeerID,
		"text":   res.Request.CommandText,
		"status": fb.StatusTag,
		"units":  fb.UnitIDs,
	}})
	ev := m.log.Debug()
	if !fb.Success {
		ev = m.log.Info()
	}
	ev.Str("peer", fb.PeerID).Int("team", res.Request.Team).Str("status", fb.StatusTag).Msg(fb.Summary)

	m.sendTo(fb.PeerID, protocol.CommandFeedbackMsg{
		Type:      protocol.TypeCommandFeedback,
		RequestID: fb.RequestID,
		Success:   fb.Success,
		Summary:   fb.Summary,
		StatusTag: fb.StatusTag,
		UnitIDs:   fb.UnitIDs,
	})
}

// worldView copies what a planner may read: the team's own units and every
// control point.
func (m *Match) worldView(team int) aicmd.WorldView {
	base, _ := m.baseOf(team)
	v := aicmd.WorldView{Team: team, Base: base}
	for _, u := range m.reg.Team(team) {
		v.Units = append(v.Units, aicmd.UnitInfo{
			ID:        u.ID,
			Team:      u.Team,
			Archetype: u.Archetype,
			Pos:       u.Pos,
			Alive:     u.Alive(),
			Static:    u.Static,
		})
	}
	for _, p := range m.tracker.Points() {
		v.Points = append(v.Points, aicmd.PointInfo{ID: p.ID, Name: p.Name, Pos: p.Pos, Owner: p.Owner})
	}
	return v
}

// sendTo delivers a message to one peer. A closed peer is pruned.
func (m *Match) sendTo(peerID string, msg any) {
	if peerID == "" || m.cfg.Roster == nil {
		return
	}
	p, ok := m.cfg.Roster.Peer(peerID)
	if !ok {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		m.log.Error().Err(err).Msg("marshal")
		return
	}
	if err := p.Send(b); errors.Is(err, ErrPeerClosed) {
		m.prune(peerID)
	}
}

func (m *Match) prune(peerID string) {
	for _, id := range m.pruned {
		if id == peerID {
			return
		}
	}
	m.pruned = append(m.pruned, peerID)
	m.cfg.Telemetry.PeerPruned(m.cfg.SessionID)
	m.log.Info().Str("peer", peerID).Msg("peer closed; pruning")
}

func (m *Match) pointOwner(id string) int {
	if p, ok := m.tracker.Point(id); ok {
		return p.Owner
	}
	return controlpoints.Neutral
}
