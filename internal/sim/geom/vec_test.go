package geom

import (
	"math"
	"testing"
)

func TestStepToward(t *testing.T) {
	p, reached := StepToward(Vec3{}, Vec3{X: 10}, 4)
	if reached || p.X != 4 || p.Z != 0 {
		t.Fatalf("step: got %+v reached=%v", p, reached)
	}
	p, reached = StepToward(p, Vec3{X: 10}, 100)
	if !reached || p.X != 10 {
		t.Fatalf("final step: got %+v reached=%v", p, reached)
	}
	p, reached = StepToward(Vec3{X: 1, Y: 3}, Vec3{X: 1, Y: 9}, 1)
	if !reached || p.Y != 3 {
		t.Fatalf("vertical-only target should count as reached without moving: %+v %v", p, reached)
	}
}

func TestDistSqXZIgnoresHeight(t *testing.T) {
	if got := DistSqXZ(Vec3{X: 3, Y: 100}, Vec3{Z: 4}); got != 25 {
		t.Fatalf("DistSqXZ: got %v want 25", got)
	}
}

func TestBasisIsOrthonormal(t *testing.T) {
	b := Basis(0.7)
	row := func(i int) Vec3 { return Vec3{X: b[i*3], Y: b[i*3+1], Z: b[i*3+2]} }
	for i := 0; i < 3; i++ {
		if l := row(i).Len(); math.Abs(l-1) > 1e-9 {
			t.Fatalf("row %d length %v", i, l)
		}
	}
}
