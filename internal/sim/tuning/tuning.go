package tuning

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz          int `yaml:"tick_rate_hz"`
	BroadcastEveryTicks int `yaml:"broadcast_every_ticks"`

	Visibility    Visibility              `yaml:"visibility"`
	ControlPoints ControlPoints           `yaml:"control_points"`
	Resources     Resources               `yaml:"resources"`
	Sessions      Sessions                `yaml:"sessions"`
	Squad         Squad                   `yaml:"squad"`
	Archetypes    map[string]ArchetypeDef `yaml:"archetypes"`
	Combat        Combat                  `yaml:"combat"`
	RateLimits    RateLimits              `yaml:"rate_limits"`
}

type Visibility struct {
	CellSize float64 `yaml:"cell_size"`
}

type ControlPoints struct {
	CaptureRate   float64 `yaml:"capture_rate"`
	DecayRate     float64 `yaml:"decay_rate"`
	FullThreshold float64 `yaml:"full_threshold"`
	NeutralBand   float64 `yaml:"neutral_band"`
	// VictoryPoints is the owned-point count that wins; 0 means a strict
	// majority of the map's points.
	VictoryPoints int `yaml:"victory_points"`
	// Income is granted per second to the owner of each point.
	Income map[string]float64 `yaml:"income"`
}

type Resources struct {
	Caps              map[string]int     `yaml:"caps"`
	Starting          map[string]int     `yaml:"starting"`
	BaseIncome        map[string]float64 `yaml:"base_income"`
	RateWindowSeconds float64            `yaml:"rate_window_seconds"`
}

type Sessions struct {
	MaxPlayers            int    `yaml:"max_players"`
	IdleTimeoutSeconds    int    `yaml:"idle_timeout_seconds"`
	StartupTimeoutSeconds int    `yaml:"startup_timeout_seconds"`
	DefaultMap            string `yaml:"default_map"`
	DefaultGameMode       string `yaml:"default_game_mode"`
}

type Squad struct {
	Archetypes []string `yaml:"archetypes"`
	Spacing    float64  `yaml:"spacing"`
	// RespawnTickets caps respawns per team; 0 means unlimited.
	RespawnTickets int `yaml:"respawn_tickets"`
}

type ArchetypeDef struct {
	Health         float64        `yaml:"health"`
	Speed          float64        `yaml:"speed"`
	Damage         float64        `yaml:"damage"`
	VisionRange    float64        `yaml:"vision_range"`
	AttackRange    float64        `yaml:"attack_range"`
	RespawnSeconds float64        `yaml:"respawn_seconds"`
	Static         bool           `yaml:"static"`
	Stealthed      bool           `yaml:"stealthed"`
	Cost           map[string]int `yaml:"cost"`
}

type Combat struct {
	Enabled bool `yaml:"enabled"`
}

type RateLimits struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		TickRateHz:          30,
		BroadcastEveryTicks: 3,
		Visibility:          Visibility{CellSize: 4},
		ControlPoints: ControlPoints{
			CaptureRate:   0.1,
			DecayRate:     0.02,
			FullThreshold: 1.0,
			NeutralBand:   0.1,
			Income:        map[string]float64{"SUPPLY": 2},
		},
		Resources: Resources{
			Caps:              map[string]int{"SUPPLY": 1000},
			Starting:          map[string]int{"SUPPLY": 200},
			BaseIncome:        map[string]float64{"SUPPLY": 1},
			RateWindowSeconds: 10,
		},
		Sessions: Sessions{
			MaxPlayers:            2,
			IdleTimeoutSeconds:    300,
			StartupTimeoutSeconds: 10,
			DefaultMap:            "ridge",
			DefaultGameMode:       "versus",
		},
		Squad: Squad{
			Archetypes:     []string{"RIFLEMAN", "RIFLEMAN", "SCOUT", "HEAVY"},
			Spacing:        3,
			RespawnTickets: 20,
		},
		Archetypes: map[string]ArchetypeDef{
			"RIFLEMAN": {Health: 100, Speed: 4, Damage: 8, VisionRange: 18, AttackRange: 12, RespawnSeconds: 10, Cost: map[string]int{"SUPPLY": 50}},
			"SCOUT":    {Health: 60, Speed: 7, Damage: 4, VisionRange: 28, AttackRange: 8, RespawnSeconds: 8, Cost: map[string]int{"SUPPLY": 40}},
			"HEAVY":    {Health: 220, Speed: 2.5, Damage: 14, VisionRange: 14, AttackRange: 10, RespawnSeconds: 15, Cost: map[string]int{"SUPPLY": 120}},
			"TURRET":   {Health: 300, Damage: 12, VisionRange: 20, AttackRange: 16, Static: true, Cost: map[string]int{"SUPPLY": 150}},
			"MINE":     {Health: 1, Damage: 60, AttackRange: 2, Static: true, Stealthed: true, Cost: map[string]int{"SUPPLY": 25}},
		},
		Combat:     Combat{Enabled: true},
		RateLimits: RateLimits{MessagesPerSecond: 10, Burst: 20},
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return errors.New("tick_rate_hz must be > 0")
	}
	if t.BroadcastEveryTicks <= 0 {
		return errors.New("broadcast_every_ticks must be > 0")
	}
	if t.Visibility.CellSize <= 0 {
		return errors.New("visibility.cell_size must be > 0")
	}
	cp := t.ControlPoints
	if cp.FullThreshold <= 0 || cp.FullThreshold > 1 {
		return errors.New("control_points.full_threshold must be in (0,1]")
	}
	if cp.NeutralBand < 0 || cp.NeutralBand >= cp.FullThreshold {
		return errors.New("control_points.neutral_band must be in [0,full_threshold)")
	}
	if t.Sessions.MaxPlayers < 1 {
		return errors.New("sessions.max_players must be >= 1")
	}
	for _, a := range t.Squad.Archetypes {
		def, ok := t.Archetypes[a]
		if !ok {
			return fmt.Errorf("squad archetype %q is not defined", a)
		}
		// Stealthed units are neither vision sources nor targets.
		if def.Stealthed {
			return fmt.Errorf("squad archetype %q must not be stealthed", a)
		}
	}
	return nil
}

// ResourceTypes returns every resource type mentioned by caps, sorted.
func (t Tuning) ResourceTypes() []string {
	out := make([]string, 0, len(t.Resources.Caps))
	for k := range t.Resources.Caps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
