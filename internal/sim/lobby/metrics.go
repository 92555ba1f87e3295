package lobby

import (
	"time"

	"skirmish.ai/internal/sim/match"
)

// Metrics is a read-only view of the lobby, refreshed every tick by the loop
// goroutine and read from HTTP handlers.
type Metrics struct {
	Tick          uint64           `json:"tick"`
	Sessions      int              `json:"sessions"`
	ActiveMatches int              `json:"active_matches"`
	Players       int              `json:"players"`
	QueueDepths   QueueDepths      `json:"queue_depths"`
	StepMS        float64          `json:"step_ms"`
	SessionList   []SessionSummary `json:"session_list"`
}

type QueueDepths struct {
	Join  int `json:"join"`
	Leave int `json:"leave"`
	Inbox int `json:"inbox"`
}

type SessionSummary struct {
	ID                          string      `json:"id"`
	State                       string      `json:"state"`
	Starting                    bool        `json:"starting"`
	GameMode                    string      `json:"game_mode"`
	Map                         string      `json:"map"`
	Players                     int         `json:"players"`
	MatchTick                   uint64      `json:"match_tick"`
	Units                       int         `json:"units"`
	AliveByTeam                 map[int]int `json:"alive_by_team,omitempty"`
	WaitingForSynchronizedStart bool        `json:"waiting_for_synchronized_start"`
	TeamsAwaitingCommands       []int       `json:"teams_awaiting_commands,omitempty"`
	CreatedAt                   time.Time   `json:"created_at"`
	LastActivity                time.Time   `json:"last_activity"`
}

func (m *Manager) storeMetrics(stepMS float64) {
	out := Metrics{
		Tick:   m.tick,
		StepMS: stepMS,
		QueueDepths: QueueDepths{
			Join:  len(m.join),
			Leave: len(m.leave),
			Inbox: len(m.inbox),
		},
		SessionList: make([]SessionSummary, 0, len(m.order)),
	}
	for _, id := range m.order {
		s := m.sessions[id]
		if s == nil {
			continue
		}
		sum := SessionSummary{
			ID:           s.ID,
			State:        s.State.String(),
			Starting:     s.starting,
			GameMode:     s.GameMode,
			Map:          s.MapName,
			Players:      len(s.players),
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
		}
		if s.match != nil {
			c := s.match.Coordinator()
			sum.MatchTick = s.match.Tick()
			sum.Units = s.match.Registry().Len()
			sum.AliveByTeam = make(map[int]int, len(match.Teams))
			for _, team := range match.Teams {
				sum.AliveByTeam[team] = len(s.match.Registry().Alive(team))
			}
			sum.WaitingForSynchronizedStart = c.WaitingForSynchronizedStart()
			sum.TeamsAwaitingCommands = c.TeamsAwaitingCommands()
		}
		if s.State == Active {
			out.ActiveMatches++
		}
		out.Players += len(s.players)
		out.SessionList = append(out.SessionList, sum)
	}
	out.Sessions = len(out.SessionList)
	m.metrics.Store(out)
	m.cfg.Telemetry.SetActiveMatches(out.ActiveMatches)
}

func (m *Manager) Metrics() Metrics {
	if m == nil {
		return Metrics{}
	}
	v := m.metrics.Load()
	if v == nil {
		return Metrics{}
	}
	mt, ok := v.(Metrics)
	if !ok {
		return Metrics{}
	}
	return mt
}
