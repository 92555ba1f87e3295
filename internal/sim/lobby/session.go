package lobby

import (
	"sort"
	"time"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/match"
)

type State int

const (
	Waiting State = iota + 1
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Game modes.
const (
	ModeVersus = "versus"
	ModeSolo   = "solo"
)

type Player struct {
	ID    string
	Name  string
	Team  int
	Ready bool
	Peer  match.Peer
}

type Session struct {
	ID       string
	State    State
	GameMode string
	MapName  string

	players map[string]*Player
	order   []string

	CreatedAt    time.Time
	LastActivity time.Time
	StartedAt    time.Time

	// starting is set while the asynchronous map load is in flight.
	starting bool
	startGen uint64

	idle    *time.Timer
	idleGen uint64

	match  *match.Match
	events EventLog
	closed bool
}

func (s *Session) maxPlayers(limit int) int {
	if s.GameMode == ModeSolo {
		return 1
	}
	return limit
}

func (s *Session) minPlayers() int {
	if s.GameMode == ModeSolo {
		return 1
	}
	return 2
}

// Players returns the roster in join order.
func (s *Session) Players() []*Player {
	out := make([]*Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.players[id])
	}
	return out
}

func (s *Session) teamCounts() map[int]int {
	c := map[int]int{}
	for _, p := range s.players {
		c[p.Team]++
	}
	return c
}

// pickTeam assigns the team with fewer members; ties go to team 1.
func (s *Session) pickTeam() int {
	c := s.teamCounts()
	if c[2] < c[1] {
		return 2
	}
	return 1
}

func (s *Session) allReady() bool {
	if len(s.players) < s.minPlayers() {
		return false
	}
	for _, p := range s.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// humanTeams are the teams with at least one player, ascending.
func (s *Session) humanTeams() []int {
	var out []int
	for team, n := range s.teamCounts() {
		if n > 0 {
			out = append(out, team)
		}
	}
	sort.Ints(out)
	return out
}

func (s *Session) removePlayer(id string) {
	delete(s.players, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Session) data() protocol.SessionData {
	d := protocol.SessionData{
		SessionID: s.ID,
		State:     s.State.String(),
		GameMode:  s.GameMode,
		Map:       s.MapName,
		Players:   []protocol.PlayerInfo{},
	}
	for _, p := range s.Players() {
		d.Players = append(d.Players, protocol.PlayerInfo{PlayerID: p.ID, Name: p.Name, TeamID: p.Team, Ready: p.Ready})
	}
	return d
}

// roster adapts a session to match.Roster.
type roster struct{ s *Session }

func (r roster) TeamPeers(team int) ([]match.Peer, bool) {
	if r.s == nil || r.s.closed {
		return nil, false
	}
	var out []match.Peer
	for _, p := range r.s.Players() {
		if p.Team == team && p.Peer != nil {
			out = append(out, p.Peer)
		}
	}
	return out, true
}

func (r roster) Peer(id string) (match.Peer, bool) {
	if r.s == nil || r.s.closed {
		return nil, false
	}
	p, ok := r.s.players[id]
	if !ok || p.Peer == nil {
		return nil, false
	}
	return p.Peer, true
}
