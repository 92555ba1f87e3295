package visibility

import (
	"math"
	"sort"
	"sync"

	"skirmish.ai/internal/sim/geom"
)

// Meta describes the grid layout sent alongside the payload.
type Meta struct {
	CellSize float64 `json:"cellSize"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// UnitSource is the read-only view of a unit the engine needs.
type UnitSource struct {
	Team        int
	Pos         geom.Vec3
	VisionRange float64
	Alive       bool
	Stealthed   bool
}

// PointSource is a control point; it only grants vision to its owner.
type PointSource struct {
	Owner        int
	Pos          geom.Vec3
	VisionRadius float64
}

type grid struct {
	cells []bool
}

// Engine keeps one boolean grid per team over a fixed world rectangle.
// Grids are rebuilt from scratch on every Update; they are never patched.
type Engine struct {
	origin geom.Vec3
	meta   Meta
	teams  []int
	grids  map[int]*grid
}

func NewEngine(min, max geom.Vec3, cellSize float64, teams []int) *Engine {
	if cellSize <= 0 {
		cellSize = 1
	}
	w := int(math.Ceil((max.X - min.X) / cellSize))
	h := int(math.Ceil((max.Z - min.Z) / cellSize))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	ts := append([]int(nil), teams...)
	sort.Ints(ts)
	e := &Engine{
		origin: min,
		meta:   Meta{CellSize: cellSize, Width: w, Height: h},
		teams:  ts,
		grids:  make(map[int]*grid, len(ts)),
	}
	for _, t := range ts {
		e.grids[t] = &grid{cells: make([]bool, w*h)}
	}
	return e
}

func (e *Engine) Meta() Meta { return e.meta }

// Update rebuilds every team grid. Teams are processed concurrently and
// Update returns only after all of them are complete.
func (e *Engine) Update(units []UnitSource, points []PointSource) {
	var wg sync.WaitGroup
	for _, team := range e.teams {
		g := e.grids[team]
		wg.Add(1)
		go func(team int, g *grid) {
			defer wg.Done()
			e.rebuild(team, g, units, points)
		}(team, g)
	}
	wg.Wait()
}

func (e *Engine) rebuild(team int, g *grid, units []UnitSource, points []PointSource) {
	for i := range g.cells {
		g.cells[i] = false
	}
	for _, u := range units {
		if u.Team != team || !u.Alive || u.Stealthed {
			continue
		}
		e.mark(g, u.Pos, u.VisionRange)
	}
	for _, p := range points {
		if p.Owner != team {
			continue
		}
		e.mark(g, p.Pos, p.VisionRadius)
	}
}

func (e *Engine) mark(g *grid, center geom.Vec3, radius float64) {
	if radius <= 0 {
		return
	}
	cs := e.meta.CellSize
	x0 := geom.ClampInt(int(math.Floor((center.X-radius-e.origin.X)/cs)), 0, e.meta.Width-1)
	x1 := geom.ClampInt(int(math.Floor((center.X+radius-e.origin.X)/cs)), 0, e.meta.Width-1)
	z0 := geom.ClampInt(int(math.Floor((center.Z-radius-e.origin.Z)/cs)), 0, e.meta.Height-1)
	z1 := geom.ClampInt(int(math.Floor((center.Z+radius-e.origin.Z)/cs)), 0, e.meta.Height-1)
	r2 := radius * radius
	for gz := z0; gz <= z1; gz++ {
		cz := e.origin.Z + (float64(gz)+0.5)*cs
		dz := cz - center.Z
		row := gz * e.meta.Width
		for gx := x0; gx <= x1; gx++ {
			cx := e.origin.X + (float64(gx)+0.5)*cs
			dx := cx - center.X
			if dx*dx+dz*dz <= r2 {
				g.cells[row+gx] = true
			}
		}
	}
}

// IsVisible reports whether pos lies in a cell the team currently sees.
// Unknown teams and out-of-bounds positions are never visible.
func (e *Engine) IsVisible(team int, pos geom.Vec3) bool {
	g := e.grids[team]
	if g == nil {
		return false
	}
	gx, gz, ok := e.cellOf(pos)
	if !ok {
		return false
	}
	return g.cells[gz*e.meta.Width+gx]
}

func (e *Engine) cellOf(pos geom.Vec3) (int, int, bool) {
	fx := (pos.X - e.origin.X) / e.meta.CellSize
	fz := (pos.Z - e.origin.Z) / e.meta.CellSize
	if fx < 0 || fz < 0 {
		return 0, 0, false
	}
	gx, gz := int(fx), int(fz)
	if gx >= e.meta.Width || gz >= e.meta.Height {
		return 0, 0, false
	}
	return gx, gz, true
}

// Payload returns one byte per cell (1 = visible), rows along Z.
func (e *Engine) Payload(team int) []byte {
	out := make([]byte, e.meta.Width*e.meta.Height)
	g := e.grids[team]
	if g == nil {
		return out
	}
	for i, v := range g.cells {
		if v {
			out[i] = 1
		}
	}
	return out
}

// VisibleCells counts the team's visible cells.
func (e *Engine) VisibleCells(team int) int {
	g := e.grids[team]
	if g == nil {
		return 0
	}
	n := 0
	for _, v := range g.cells {
		if v {
			n++
		}
	}
	return n
}
