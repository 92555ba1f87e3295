package match

import (
	"fmt"

	"skirmish.ai/internal/sim/controlpoints"
	"skirmish.ai/internal/sim/units"
)

// Event is one line of the match event log.
type Event struct {
	Tick    uint64         `json:"tick"`
	Session string         `json:"session"`
	Type    string         `json:"type"`
	Team    int            `json:"team,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type EventSink interface {
	WriteEvent(e Event) error
}

func (m *Match) record(e Event) {
	if m.cfg.Events == nil {
		return
	}
	e.Tick = m.tick
	e.Session = m.cfg.SessionID
	if err := m.cfg.Events.WriteEvent(e); err != nil {
		m.log.Warn().Err(err).Str("event", e.Type).Msg("event log write failed")
	}
}

func incomeID(point, typ string) string { return fmt.Sprintf("cp:%s:%s", point, typ) }

// onPointEvent keeps control-point income in step with ownership.
func (m *Match) onPointEvent(e controlpoints.Event) {
	switch ev := e.(type) {
	case controlpoints.Captured:
		for typ, rate := range m.cfg.Tuning.ControlPoints.Income {
			m.ledger.RegisterGenerator(incomeID(ev.Point, typ), ev.Team, typ, rate)
		}
		m.record(Event{Type: controlpoints.Name(e), Team: ev.Team, Data: map[string]any{"point": ev.Point, "previous": ev.Previous}})
	case controlpoints.Neutralized:
		for typ := range m.cfg.Tuning.ControlPoints.Income {
			m.ledger.Unregister(incomeID(ev.Point, typ))
		}
		m.record(Event{Type: controlpoints.Name(e), Team: ev.Previous, Data: map[string]any{"point": ev.Point}})
	case controlpoints.Contested:
		m.record(Event{Type: controlpoints.Name(e), Team: ev.Attacker, Data: map[string]any{
			"point":    ev.Point,
			"defender": ev.Defender,
			"progress": ev.Progress,
		}})
	case controlpoints.Victory:
		m.record(Event{Type: controlpoints.Name(e), Team: ev.Team, Data: map[string]any{"counts": ev.Counts}})
	}
}

func (m *Match) onUnitEvent(e units.Event) {
	switch ev := e.(type) {
	case units.Spawned:
		m.record(Event{Type: units.Name(e), Team: ev.Team, Data: map[string]any{"unit": ev.UnitID, "archetype": ev.Archetype}})
	case units.Died:
		m.record(Event{Type: units.Name(e), Team: ev.Team, Data: map[string]any{"unit": ev.UnitID, "by": ev.By, "removed": ev.Removed}})
	case units.Respawned:
		m.record(Event{Type: units.Name(e), Team: ev.Team, Data: map[string]any{"unit": ev.UnitID}})
	}
}
