// Package match runs one active match: the per-tick step over the unit
// registry, resource ledger, capture tracker, visibility engine and AI
// coordinator, and the reduced-rate per-team broadcast.
//
// A Match is driven by a single goroutine (the lobby loop). Only planner
// goroutines touch it concurrently, and they do so through the results
// channel.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/aicmd"
	"skirmish.ai/internal/sim/combat"
	"skirmish.ai/internal/sim/controlpoints"
	"skirmish.ai/internal/sim/geom"
	"skirmish.ai/internal/sim/maps"
	"skirmish.ai/internal/sim/resources"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/visibility"
	"skirmish.ai/internal/telemetry"
)

// Teams are fixed: every match is team 1 against team 2.
var Teams = []int{controlpoints.Team1, controlpoints.Team2}

var ErrPeerClosed = errors.New("peer closed")

// Peer is one connected client. Send must not block; it returns
// ErrPeerClosed once the peer is gone.
type Peer interface {
	ID() string
	Send(b []byte) error
}

// Roster resolves the peers currently attached to the match's session.
type Roster interface {
	// TeamPeers returns ok=false when the peer list cannot be resolved.
	TeamPeers(team int) ([]Peer, bool)
	Peer(id string) (Peer, bool)
}

type State int

const (
	Active State = iota + 1
	Ended
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

type Config struct {
	SessionID string
	GameMode  string
	Map       maps.Map
	Tuning    tuning.Tuning

	// TrackedTeams are the teams the synchronized start waits for.
	TrackedTeams []int

	Planner     aicmd.Planner
	PlanTimeout time.Duration
	// Combat overrides the resolver; nil uses Proximity when combat is
	// enabled in tuning.
	Combat combat.Resolver

	Roster    Roster
	Events    EventSink
	Telemetry *telemetry.Instruments
	Log       zerolog.Logger
}

// Outcome is the end-of-match result.
type Outcome struct {
	SessionID          string
	WinningTeam        int
	VictoryType        string
	DurationSeconds    float64
	Tick               uint64
	FinalControlCounts map[int]int
	Kills              map[int]int
	Deaths             map[int]int
}

type Match struct {
	cfg Config
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	reg     *units.Registry
	ledger  *resources.Ledger
	tracker *controlpoints.Tracker
	vis     *visibility.Engine
	coord   *aicmd.Coordinator
	combat  combat.Resolver

	state   State
	tick    uint64
	elapsed float64
	outcome *Outcome

	commands []CommandRequest
	spawns   []SpawnRequest
	results  chan aicmd.Result

	sentGoals map[string]goalEntry
	pruned    []string
}

// New performs per-team system initialization and the initial squad spawn.
// The returned match is active.
func New(ctx context.Context, cfg Config) (*Match, error) {
	if err := cfg.Map.Validate(); err != nil {
		return nil, err
	}
	if cfg.Planner == nil {
		cfg.Planner = aicmd.KeywordPlanner{}
	}
	t := cfg.Tuning
	mctx, cancel := context.WithCancel(ctx)
	m := &Match{
		cfg:       cfg,
		log:       cfg.Log.With().Str("session", cfg.SessionID).Logger(),
		ctx:       mctx,
		cancel:    cancel,
		results:   make(chan aicmd.Result, 64),
		sentGoals: map[string]goalEntry{},
		state:     Active,
	}

	archetypes := make(map[string]units.Archetype, len(t.Archetypes))
	for name, a := range t.Archetypes {
		archetypes[name] = units.Archetype{
			Health:         a.Health,
			Speed:          a.Speed,
			Damage:         a.Damage,
			VisionRange:    a.VisionRange,
			AttackRange:    a.AttackRange,
			RespawnSeconds: a.RespawnSeconds,
			Static:         a.Static,
			Stealthed:      a.Stealthed,
			Cost:           a.Cost,
		}
	}
	m.reg = units.NewRegistry(units.Options{
		Archetypes:     archetypes,
		RespawnTickets: t.Squad.RespawnTickets,
		RespawnPoint:   m.spawnPosition,
	})
	m.ledger = resources.NewLedger(resources.Config{
		Caps:       t.Resources.Caps,
		Starting:   t.Resources.Starting,
		RateWindow: t.Resources.RateWindowSeconds,
	}, Teams)
	for _, team := range Teams {
		for typ, rate := range t.Resources.BaseIncome {
			m.ledger.RegisterGenerator(fmt.Sprintf("base:%d:%s", team, typ), team, typ, rate)
		}
	}

	defs := make([]controlpoints.Point, 0, len(cfg.Map.ControlPoints))
	for _, p := range cfg.Map.ControlPoints {
		defs = append(defs, controlpoints.Point{
			ID:            p.ID,
			Name:          p.Name,
			Pos:           p.Pos,
			CaptureRadius: p.CaptureRadius,
			VisionRadius:  p.VisionRadius,
		})
	}
	m.tracker = controlpoints.NewTracker(controlpoints.Config{
		CaptureRate:   t.ControlPoints.CaptureRate,
		DecayRate:     t.ControlPoints.DecayRate,
		FullThreshold: t.ControlPoints.FullThreshold,
		NeutralBand:   t.ControlPoints.NeutralBand,
		VictoryPoints: t.ControlPoints.VictoryPoints,
	}, defs)
	m.vis = visibility.NewEngine(cfg.Map.Min, cfg.Map.Max, t.Visibility.CellSize, Teams)
	m.coord = aicmd.NewCoordinator(m.reg, cfg.TrackedTeams)

	m.combat = cfg.Combat
	if m.combat == nil && t.Combat.Enabled {
		m.combat = combat.Proximity{}
	}

	m.tracker.Subscribe(m.onPointEvent)
	m.reg.Subscribe(m.onUnitEvent)

	if err := m.spawnSquads(); err != nil {
		cancel()
		return nil, err
	}
	m.refreshVisibility()
	m.log.Info().Str("map", cfg.Map.Name).Ints("tracked_teams", cfg.TrackedTeams).Int("units", m.reg.Len()).Msg("match started")
	return m, nil
}

// Close cancels in-flight planning. It is safe to call more than once.
func (m *Match) Close() { m.cancel() }

func (m *Match) SessionID() string    { return m.cfg.SessionID }
func (m *Match) State() State         { return m.state }
func (m *Match) Tick() uint64         { return m.tick }
func (m *Match) Outcome() *Outcome    { return m.outcome }
func (m *Match) Map() maps.Map        { return m.cfg.Map }
func (m *Match) GameMode() string     { return m.cfg.GameMode }
func (m *Match) Units() []*units.Unit { return m.reg.All() }

// Registry, Ledger, Tracker, Visibility and Coordinator expose the match
// systems for read access from the loop goroutine and tests.
func (m *Match) Registry() *units.Registry       { return m.reg }
func (m *Match) Ledger() *resources.Ledger       { return m.ledger }
func (m *Match) Tracker() *controlpoints.Tracker { return m.tracker }
func (m *Match) Visibility() *visibility.Engine  { return m.vis }
func (m *Match) Coordinator() *aicmd.Coordinator { return m.coord }

// Abandon ends the match without a winner, e.g. when every player left.
func (m *Match) Abandon() *Outcome {
	if m.state != Active {
		return nil
	}
	m.end(0, protocol.VictoryAbandoned)
	return m.outcome
}

func (m *Match) end(winner int, victoryType string) {
	counts := m.tracker.Counts()
	kills, deaths := m.reg.Tally()
	m.state = Ended
	m.outcome = &Outcome{
		SessionID:          m.cfg.SessionID,
		WinningTeam:        winner,
		VictoryType:        victoryType,
		DurationSeconds:    m.elapsed,
		Tick:               m.tick,
		FinalControlCounts: counts,
		Kills:              kills,
		Deaths:             deaths,
	}
	m.record(Event{Type: "MATCH_ENDED", Team: winner, Data: map[string]any{
		"victory_type": victoryType,
		"duration_s":   m.elapsed,
		"counts":       counts,
	}})
	m.log.Info().Int("winner", winner).Str("victory_type", victoryType).Uint64("tick", m.tick).Msg("match ended")
	m.cancel()
}

func (m *Match) baseOf(team int) (geom.Vec3, geom.Vec3) {
	if b, ok := m.cfg.Map.Base(team); ok {
		return b.Anchor, b.Facing
	}
	anchor := fallbackSpawn(m.cfg.Map, team)
	center := m.cfg.Map.Min.Add(m.cfg.Map.Max).Scale(0.5)
	return anchor, center.Sub(anchor)
}
