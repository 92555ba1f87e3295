package maps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"skirmish.ai/internal/sim/geom"
)

var (
	ErrNotFound = errors.New("map not found")
	ErrInvalid  = errors.New("invalid map")
)

// Map is the static description of a battlefield. The playable area is the
// X/Z rectangle [Min, Max).
type Map struct {
	Name          string     `yaml:"name"`
	Min           geom.Vec3  `yaml:"min"`
	Max           geom.Vec3  `yaml:"max"`
	Bases         []Base     `yaml:"bases"`
	ControlPoints []PointDef `yaml:"control_points"`
}

type Base struct {
	Team   int       `yaml:"team"`
	Anchor geom.Vec3 `yaml:"anchor"`
	// Facing points from the base toward the enemy; squads form up across it.
	Facing geom.Vec3 `yaml:"facing"`
}

type PointDef struct {
	ID            string    `yaml:"id"`
	Name          string    `yaml:"name"`
	Pos           geom.Vec3 `yaml:"pos"`
	CaptureRadius float64   `yaml:"capture_radius"`
	VisionRadius  float64   `yaml:"vision_radius"`
}

func (m Map) Width() float64 { return m.Max.X - m.Min.X }
func (m Map) Depth() float64 { return m.Max.Z - m.Min.Z }

// Contains reports whether p lies inside the playable rectangle.
func (m Map) Contains(p geom.Vec3) bool {
	return p.X >= m.Min.X && p.X < m.Max.X && p.Z >= m.Min.Z && p.Z < m.Max.Z
}

// ClampInside pulls p inside the playable rectangle, keeping a one-unit margin.
func (m Map) ClampInside(p geom.Vec3) geom.Vec3 {
	p.X = geom.Clamp(p.X, m.Min.X+1, m.Max.X-1)
	p.Z = geom.Clamp(p.Z, m.Min.Z+1, m.Max.Z-1)
	return p
}

func (m Map) Base(team int) (Base, bool) {
	for _, b := range m.Bases {
		if b.Team == team {
			return b, true
		}
	}
	return Base{}, false
}

func (m Map) Validate() error {
	if m.Width() <= 0 || m.Depth() <= 0 {
		return fmt.Errorf("%w: empty bounds", ErrInvalid)
	}
	seen := map[string]bool{}
	for _, p := range m.ControlPoints {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: control point without id", ErrInvalid)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate control point %q", ErrInvalid, p.ID)
		}
		seen[p.ID] = true
		if p.CaptureRadius <= 0 {
			return fmt.Errorf("%w: control point %q capture_radius must be > 0", ErrInvalid, p.ID)
		}
	}
	return nil
}

// Loader resolves a map by name. Implementations must honor ctx.
type Loader interface {
	Load(ctx context.Context, name string) (Map, error)
}

// FileLoader reads <Dir>/<name>.yaml.
type FileLoader struct {
	Dir string
}

func (l FileLoader) Load(ctx context.Context, name string) (Map, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Map{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	type result struct {
		m   Map
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := readFile(filepath.Join(l.Dir, name+".yaml"))
		ch <- result{m: m, err: err}
	}()
	select {
	case <-ctx.Done():
		return Map{}, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return Map{}, r.err
		}
		if r.m.Name == "" {
			r.m.Name = name
		}
		return r.m, nil
	}
}

func readFile(path string) (Map, error) {
	var m Map
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return m, err
	}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := m.Validate(); err != nil {
		return m, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// Static serves maps from memory. Tests and embedded setups use it.
type Static map[string]Map

func (s Static) Load(ctx context.Context, name string) (Map, error) {
	if err := ctx.Err(); err != nil {
		return Map{}, err
	}
	m, ok := s[name]
	if !ok {
		return Map{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if m.Name == "" {
		m.Name = name
	}
	return m, m.Validate()
}
