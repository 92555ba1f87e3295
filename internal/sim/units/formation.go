package units

import (
	"math"

	"skirmish.ai/internal/sim/geom"
)

const formationRowWidth = 4

// Formation lays out n slots in rows of four centred on anchor. Rows stack
// away from facing, so the first row is the one closest to the enemy.
func Formation(anchor, facing geom.Vec3, n int, spacing float64) []geom.Vec3 {
	if n <= 0 {
		return nil
	}
	if spacing <= 0 {
		spacing = 1
	}
	fwd := facing.Flat()
	if l := math.Sqrt(fwd.FlatLenSq()); l > 0 {
		fwd = fwd.Scale(1 / l)
	} else {
		fwd = geom.Vec3{X: 1}
	}
	right := geom.Vec3{X: -fwd.Z, Z: fwd.X}

	out := make([]geom.Vec3, 0, n)
	for i := 0; i < n; i++ {
		row := i / formationRowWidth
		col := i % formationRowWidth
		inRow := formationRowWidth
		if rem := n - row*formationRowWidth; rem < formationRowWidth {
			inRow = rem
		}
		lateral := (float64(col) - float64(inRow-1)/2) * spacing
		back := float64(row) * spacing
		p := anchor.Add(right.Scale(lateral)).Sub(fwd.Scale(back))
		out = append(out, p)
	}
	return out
}
