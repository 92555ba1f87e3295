package match

import (
	"errors"
	"fmt"
	"math"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/geom"
	"skirmish.ai/internal/sim/maps"
	"skirmish.ai/internal/sim/resources"
	"skirmish.ai/internal/sim/units"
)

// mineArchetype is placed as a Mine entity instead of a unit.
const mineArchetype = "MINE"

const spawnSearchRings = 6

// fallbackSpawn is used when a map has no base for the team: opposite
// corners of the playable area.
func fallbackSpawn(m maps.Map, team int) geom.Vec3 {
	const inset = 16
	if team == 2 {
		return m.ClampInside(geom.Vec3{X: m.Max.X - inset, Z: m.Max.Z - inset})
	}
	return m.ClampInside(geom.Vec3{X: m.Min.X + inset, Z: m.Min.Z + inset})
}

func (m *Match) spawnSquads() error {
	sq := m.cfg.Tuning.Squad
	for _, team := range Teams {
		anchor, facing := m.baseOf(team)
		if _, ok := m.cfg.Map.Base(team); !ok {
			m.log.Warn().Int("team", team).Msg("map has no base; using fallback spawn")
		}
		slots := units.Formation(anchor, facing, len(sq.Archetypes), sq.Spacing)
		for i, name := range sq.Archetypes {
			if _, err := m.reg.Spawn(team, name, m.cfg.Map.ClampInside(slots[i]), m.tick, m.coord.SpawnWaiting()); err != nil {
				return fmt.Errorf("spawn squad for team %d: %w", team, err)
			}
		}
	}
	return nil
}

// spawnPosition finds a free spot near the team's base, searching outward in
// rings. It is also the registry's respawn point.
func (m *Match) spawnPosition(team int) geom.Vec3 {
	anchor, _ := m.baseOf(team)
	step := m.cfg.Tuning.Squad.Spacing
	if step <= 0 {
		step = 2
	}
	for ring := 0; ring <= spawnSearchRings; ring++ {
		n := 1
		if ring > 0 {
			n = ring * 8
		}
		for k := 0; k < n; k++ {
			a := 2 * math.Pi * float64(k) / float64(n)
			p := anchor.Add(geom.Vec3{X: math.Cos(a) * float64(ring) * step, Z: math.Sin(a) * float64(ring) * step})
			p = m.cfg.Map.ClampInside(p)
			if !m.reg.Occupied(p, step/2) {
				return p
			}
		}
	}
	return anchor
}

func (m *Match) handleSpawn(req SpawnRequest) {
	res := protocol.SpawnResultMsg{Type: protocol.TypeSpawnResult, Archetype: req.Archetype}
	defer func() { m.sendTo(req.PeerID, res) }()

	a, ok := m.reg.Archetype(req.Archetype)
	if !ok {
		res.Code = protocol.ErrInvalidTarget
		res.Summary = fmt.Sprintf("unknown archetype %q", req.Archetype)
		return
	}
	if err := m.ledger.Spend(req.Team, a.Cost); err != nil {
		res.Code = protocol.ErrBadRequest
		if errors.Is(err, resources.ErrInsufficient) {
			res.Code = protocol.ErrNoResource
		}
		res.Summary = err.Error()
		m.log.Debug().Err(err).Int("team", req.Team).Str("archetype", req.Archetype).Msg("spawn refused")
		return
	}
	pos := m.spawnPosition(req.Team)
	if req.Archetype == mineArchetype {
		mine := m.reg.PlaceMine(req.Team, pos, a.Stealthed)
		m.record(Event{Type: "MINE_PLACED", Team: req.Team, Data: map[string]any{"mine": mine.ID}})
		res.Success = true
		res.UnitID = mine.ID
		res.Summary = "mine placed"
		return
	}
	u, err := m.reg.Spawn(req.Team, req.Archetype, pos, m.tick, m.coord.SpawnWaiting())
	if err != nil {
		res.Code = protocol.ErrInternal
		res.Summary = err.Error()
		return
	}
	res.Success = true
	res.UnitID = u.ID
	res.Summary = fmt.Sprintf("%s spawned", req.Archetype)
}

// detonateMines damages the first alive enemy inside each mine's trigger
// radius and removes the mine.
func (m *Match) detonateMines() {
	def, ok := m.reg.Archetype(mineArchetype)
	if !ok || def.AttackRange <= 0 {
		return
	}
	r2 := def.AttackRange * def.AttackRange
	all := m.reg.All()
	for _, mine := range m.reg.Mines() {
		for _, u := range all {
			if u.Team == mine.Team || u.Dead || u.Untargetable {
				continue
			}
			if geom.DistSqXZ(u.Pos, mine.Pos) > r2 {
				continue
			}
			if _, err := m.reg.ApplyDamage(u.ID, def.Damage, mine.ID); err != nil {
				m.log.Warn().Err(err).Msg("mine damage")
			}
			m.reg.RemoveMine(mine.ID)
			m.record(Event{Type: "MINE_DETONATED", Team: mine.Team, Data: map[string]any{"mine": mine.ID, "unit": u.ID}})
			break
		}
	}
}
