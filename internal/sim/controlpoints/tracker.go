package controlpoints

import (
	"math"
	"sort"

	"skirmish.ai/internal/sim/geom"
)

const (
	Neutral = 0
	Team1   = 1
	Team2   = 2
)

type Config struct {
	// CaptureRate and DecayRate are capture-value units per second.
	CaptureRate   float64
	DecayRate     float64
	FullThreshold float64
	NeutralBand   float64
	// VictoryPoints of 0 means a strict majority of the points.
	VictoryPoints int
}

type Point struct {
	ID            string
	Name          string
	Pos           geom.Vec3
	CaptureRadius float64
	VisionRadius  float64

	// Value is in [-1,1]; positive leans toward team 1, negative toward team 2.
	Value float64
	Owner int

	contested bool
	// held1 and held2 record presence at the previous update.
	held1, held2 bool
}

func (p *Point) Contested() bool { return p.contested }

// Occupant is an alive unit that can influence capture.
type Occupant struct {
	Team int
	Pos  geom.Vec3
}

type Event interface{ eventName() string }

type Captured struct {
	Point    string
	Team     int
	Previous int
}

type Contested struct {
	Point    string
	Attacker int
	Defender int
	Progress float64
}

type Neutralized struct {
	Point    string
	Previous int
}

type Victory struct {
	Team   int
	Counts map[int]int
}

func (Captured) eventName() string    { return "CAPTURED" }
func (Contested) eventName() string   { return "CONTESTED" }
func (Neutralized) eventName() string { return "NEUTRALIZED" }
func (Victory) eventName() string     { return "VICTORY" }

// Name returns the event type tag used in logs and on the wire.
func Name(e Event) string { return e.eventName() }

type Observer func(Event)

// Tracker owns capture state for every point of a match. It is not safe for
// concurrent use; the match tick goroutine drives it.
type Tracker struct {
	cfg       Config
	points    []*Point
	byID      map[string]*Point
	observers []Observer

	winner int
}

func NewTracker(cfg Config, defs []Point) *Tracker {
	if cfg.FullThreshold <= 0 || cfg.FullThreshold > 1 {
		cfg.FullThreshold = 1
	}
	t := &Tracker{cfg: cfg, byID: make(map[string]*Point, len(defs))}
	for _, d := range defs {
		p := d
		p.Value = geom.Clamp(p.Value, -1, 1)
		p.Owner = Neutral
		if math.Abs(p.Value) >= cfg.FullThreshold {
			p.Owner = teamForSign(p.Value)
		}
		t.points = append(t.points, &p)
		t.byID[p.ID] = &p
	}
	sort.Slice(t.points, func(i, j int) bool { return t.points[i].ID < t.points[j].ID })
	return t
}

// Subscribe registers an observer. Each state change is delivered once to
// every observer, in registration order.
func (t *Tracker) Subscribe(o Observer) {
	if o != nil {
		t.observers = append(t.observers, o)
	}
}

func (t *Tracker) emit(e Event) {
	for _, o := range t.observers {
		o(e)
	}
}

func (t *Tracker) Point(id string) (*Point, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// Points returns the points ordered by ID. Callers must not mutate them.
func (t *Tracker) Points() []*Point { return t.points }

// Winner returns the team that achieved victory, or 0.
func (t *Tracker) Winner() int { return t.winner }

// VictoryThreshold is the owned-point count a team needs to win.
func (t *Tracker) VictoryThreshold() int {
	if t.cfg.VictoryPoints > 0 {
		return t.cfg.VictoryPoints
	}
	return len(t.points)/2 + 1
}

// Update advances every point by dt seconds given the current occupants.
// It is a no-op once a victory has been declared.
func (t *Tracker) Update(dt float64, occupants []Occupant) {
	if t.winner != 0 || dt <= 0 {
		return
	}
	for _, p := range t.points {
		var has1, has2 bool
		r2 := p.CaptureRadius * p.CaptureRadius
		for _, o := range occupants {
			if geom.DistSqXZ(o.Pos, p.Pos) > r2 {
				continue
			}
			switch o.Team {
			case Team1:
				has1 = true
			case Team2:
				has2 = true
			}
		}
		t.updatePoint(p, dt, has1, has2)
		p.held1, p.held2 = has1, has2
	}
}

func (t *Tracker) updatePoint(p *Point, dt float64, has1, has2 bool) {
	if has1 && has2 {
		if !p.contested {
			p.contested = true
			// At a dead-neutral value the team already standing on the point
			// defends. Both arriving on the same update leaves both sides 0.
			defender := p.Owner
			if defender == Neutral {
				defender = teamForSign(p.Value)
			}
			if defender == Neutral {
				switch {
				case p.held1 && !p.held2:
					defender = Team1
				case p.held2 && !p.held1:
					defender = Team2
				}
			}
			attacker := Neutral
			if defender != Neutral {
				attacker = otherTeam(defender)
			}
			t.emit(Contested{Point: p.ID, Attacker: attacker, Defender: defender, Progress: math.Abs(p.Value)})
		}
		return
	}
	p.contested = false

	switch {
	case has1:
		p.Value = math.Min(1, p.Value+t.cfg.CaptureRate*dt)
	case has2:
		p.Value = math.Max(-1, p.Value-t.cfg.CaptureRate*dt)
	default:
		step := t.cfg.DecayRate * dt
		if p.Value > 0 {
			p.Value = math.Max(0, p.Value-step)
		} else if p.Value < 0 {
			p.Value = math.Min(0, p.Value+step)
		}
	}

	mag := math.Abs(p.Value)
	switch {
	case mag >= t.cfg.FullThreshold:
		team := teamForSign(p.Value)
		if team != p.Owner {
			prev := p.Owner
			p.Owner = team
			t.emit(Captured{Point: p.ID, Team: team, Previous: prev})
		}
	case mag <= t.cfg.NeutralBand && p.Owner != Neutral:
		prev := p.Owner
		p.Owner = Neutral
		t.emit(Neutralized{Point: p.ID, Previous: prev})
	}
}

// Counts returns owned points per team (teams with zero are included).
func (t *Tracker) Counts() map[int]int {
	out := map[int]int{Team1: 0, Team2: 0}
	for _, p := range t.points {
		if p.Owner != Neutral {
			out[p.Owner]++
		}
	}
	return out
}

// CheckVictory declares a winner the first time a team's owned count reaches
// the threshold. Later calls return false and emit nothing.
func (t *Tracker) CheckVictory() (Victory, bool) {
	if t.winner != 0 || len(t.points) == 0 {
		return Victory{}, false
	}
	counts := t.Counts()
	need := t.VictoryThreshold()
	best, bestCount := Neutral, 0
	for _, team := range []int{Team1, Team2} {
		c := counts[team]
		if c >= need && c > bestCount {
			best, bestCount = team, c
		}
	}
	if best == Neutral {
		return Victory{}, false
	}
	t.winner = best
	v := Victory{Team: best, Counts: counts}
	t.emit(v)
	return v, true
}

func teamForSign(v float64) int {
	switch {
	case v > 0:
		return Team1
	case v < 0:
		return Team2
	default:
		return Neutral
	}
}

func otherTeam(team int) int {
	if team == Team1 {
		return Team2
	}
	return Team1
}
