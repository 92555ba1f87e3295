package units

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"skirmish.ai/internal/sim/geom"
)

var (
	ErrUnknownArchetype = errors.New("unknown archetype")
	ErrUnknownUnit      = errors.New("unknown unit")
)

type Event interface{ eventName() string }

type Spawned struct {
	UnitID    string
	Team      int
	Archetype string
}

type Died struct {
	UnitID  string
	Team    int
	By      string
	Removed bool
}

type Respawned struct {
	UnitID string
	Team   int
}

func (Spawned) eventName() string   { return "SPAWNED" }
func (Died) eventName() string      { return "DIED" }
func (Respawned) eventName() string { return "RESPAWNED" }

func Name(e Event) string { return e.eventName() }

// Options configure a Registry.
type Options struct {
	Archetypes map[string]Archetype
	// RespawnTickets limits revivals per team; 0 means unlimited. A unit that
	// dies with no tickets left stays dead.
	RespawnTickets int
	// RespawnPoint resolves where a revived unit reappears.
	RespawnPoint func(team int) geom.Vec3
}

// Registry owns every live entity of a match. It is driven by the match tick
// and is not safe for concurrent use.
type Registry struct {
	archetypes   map[string]Archetype
	units        map[string]*Unit
	mines        map[string]*Mine
	tickets      map[int]int
	kills        map[int]int
	deaths       map[int]int
	unlimited    bool
	respawnPoint func(team int) geom.Vec3
	observers    []func(Event)

	nextUnit uint64
	nextMine uint64
}

func NewRegistry(opts Options) *Registry {
	r := &Registry{
		archetypes:   map[string]Archetype{},
		units:        map[string]*Unit{},
		mines:        map[string]*Mine{},
		tickets:      map[int]int{},
		kills:        map[int]int{},
		deaths:       map[int]int{},
		unlimited:    opts.RespawnTickets <= 0,
		respawnPoint: opts.RespawnPoint,
	}
	for name, a := range opts.Archetypes {
		a.Name = name
		r.archetypes[name] = a
	}
	if !r.unlimited {
		for _, team := range []int{1, 2} {
			r.tickets[team] = opts.RespawnTickets
		}
	}
	return r
}

func (r *Registry) Subscribe(fn func(Event)) {
	if fn != nil {
		r.observers = append(r.observers, fn)
	}
}

func (r *Registry) emit(e Event) {
	for _, fn := range r.observers {
		fn(e)
	}
}

func (r *Registry) Archetype(name string) (Archetype, bool) {
	a, ok := r.archetypes[name]
	return a, ok
}

// Spawn creates a unit at pos. waiting marks it as blocked until the
// synchronized start gate releases.
func (r *Registry) Spawn(team int, archetype string, pos geom.Vec3, tick uint64, waiting bool) (*Unit, error) {
	a, ok := r.archetypes[archetype]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArchetype, archetype)
	}
	r.nextUnit++
	u := &Unit{
		ID:                     fmt.Sprintf("U%d", r.nextUnit),
		Archetype:              archetype,
		Team:                   team,
		MaxHealth:              a.Health,
		Speed:                  a.Speed,
		Damage:                 a.Damage,
		VisionRange:            a.VisionRange,
		AttackRange:            a.AttackRange,
		Static:                 a.Static,
		Stealthed:              a.Stealthed,
		Pos:                    pos,
		Health:                 a.Health,
		WaitingForFirstCommand: waiting,
		SpawnedTick:            tick,
	}
	r.units[u.ID] = u
	r.emit(Spawned{UnitID: u.ID, Team: team, Archetype: archetype})
	return u, nil
}

func (r *Registry) PlaceMine(team int, pos geom.Vec3, stealthed bool) *Mine {
	r.nextMine++
	m := &Mine{ID: fmt.Sprintf("M%d", r.nextMine), Team: team, Pos: pos, Stealthed: stealthed}
	r.mines[m.ID] = m
	return m
}

func (r *Registry) RemoveMine(id string) { delete(r.mines, id) }

func (r *Registry) Get(id string) (*Unit, bool) {
	u, ok := r.units[id]
	return u, ok
}

// All returns every unit sorted by spawn order.
func (r *Registry) All() []*Unit {
	out := make([]*Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

func (r *Registry) Team(team int) []*Unit {
	var out []*Unit
	for _, u := range r.All() {
		if u.Team == team {
			out = append(out, u)
		}
	}
	return out
}

// Alive returns the team's units that are not dead, in spawn order.
func (r *Registry) Alive(team int) []*Unit {
	var out []*Unit
	for _, u := range r.Team(team) {
		if u.Alive() {
			out = append(out, u)
		}
	}
	return out
}

func (r *Registry) Mines() []*Mine {
	out := make([]*Mine, 0, len(r.mines))
	for _, m := range r.mines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

func (r *Registry) Len() int { return len(r.units) }

// ApplyDamage reduces health. A unit reaching zero dies: static units are
// removed, others start their respawn countdown when tickets allow.
func (r *Registry) ApplyDamage(id string, amount float64, by string) (bool, error) {
	u := r.units[id]
	if u == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	if u.Dead || u.Untargetable || amount <= 0 {
		return false, nil
	}
	u.Health -= amount
	if u.Health > 0 {
		return false, nil
	}
	r.kill(u, by)
	return true, nil
}

// Kill forces a unit's death regardless of health.
func (r *Registry) Kill(id, by string) error {
	u := r.units[id]
	if u == nil {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	if !u.Dead {
		r.kill(u, by)
	}
	return nil
}

func (r *Registry) kill(u *Unit, by string) {
	u.Health = 0
	u.Dead = true
	u.Deaths++
	u.Velocity = geom.Vec3{}
	r.deaths[u.Team]++
	if killer := r.units[by]; killer != nil {
		killer.Kills++
		r.kills[killer.Team]++
	} else if mine := r.mines[by]; mine != nil {
		r.kills[mine.Team]++
	}
	if u.Static {
		delete(r.units, u.ID)
		r.emit(Died{UnitID: u.ID, Team: u.Team, By: by, Removed: true})
		return
	}
	a := r.archetypes[u.Archetype]
	if r.unlimited || r.tickets[u.Team] > 0 {
		if !r.unlimited {
			r.tickets[u.Team]--
		}
		u.Respawning = true
		u.RespawnTimer = math.Max(a.RespawnSeconds, 0)
	}
	r.emit(Died{UnitID: u.ID, Team: u.Team, By: by})
}

func (r *Registry) Remove(id string) { delete(r.units, id) }

// Tally returns per-team kill and death totals, including units that were
// removed after dying.
func (r *Registry) Tally() (kills, deaths map[int]int) {
	kills = make(map[int]int, len(r.kills))
	for t, n := range r.kills {
		kills[t] = n
	}
	deaths = make(map[int]int, len(r.deaths))
	for t, n := range r.deaths {
		deaths[t] = n
	}
	return kills, deaths
}

// Tick counts down respawn timers and revives units whose timer expired.
func (r *Registry) Tick(dt float64) {
	for _, u := range r.All() {
		if !u.Respawning {
			continue
		}
		u.RespawnTimer -= dt
		if u.RespawnTimer > 0 {
			continue
		}
		u.RespawnTimer = 0
		u.Respawning = false
		u.Dead = false
		u.Health = u.MaxHealth
		u.MoveTarget = nil
		if r.respawnPoint != nil {
			u.Pos = r.respawnPoint(u.Team)
		}
		r.emit(Respawned{UnitID: u.ID, Team: u.Team})
	}
}

// Move advances every alive mobile unit that is not waiting toward its
// destination. dest resolves the destination of a unit, if it has one.
func (r *Registry) Move(dt float64, dest func(u *Unit) (geom.Vec3, bool)) {
	for _, u := range r.All() {
		u.Velocity = geom.Vec3{}
		if u.Dead || u.Static || u.WaitingForFirstCommand || u.Speed <= 0 {
			continue
		}
		to, ok := dest(u)
		if !ok {
			continue
		}
		next, _ := geom.StepToward(u.Pos, to, u.Speed*dt)
		delta := next.Sub(u.Pos)
		if !delta.IsZero() {
			u.Yaw = geom.Yaw(delta)
			u.Velocity = delta.Scale(1 / dt)
		}
		u.Pos = next
	}
}

// Occupied reports whether any alive unit stands within radius of pos.
func (r *Registry) Occupied(pos geom.Vec3, radius float64) bool {
	r2 := radius * radius
	for _, u := range r.units {
		if !u.Dead && geom.DistSqXZ(u.Pos, pos) < r2 {
			return true
		}
	}
	return false
}

// Elimination returns the teams among teams that have no alive unit and no
// unit waiting to respawn.
func (r *Registry) Elimination(teams []int) []int {
	standing := map[int]bool{}
	for _, u := range r.units {
		if !u.Dead || u.Respawning {
			standing[u.Team] = true
		}
	}
	var out []int
	for _, t := range teams {
		if !standing[t] {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) Tickets(team int) (int, bool) {
	if r.unlimited {
		return 0, false
	}
	return r.tickets[team], true
}

// idLess orders ids like "U2" < "U10".
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
