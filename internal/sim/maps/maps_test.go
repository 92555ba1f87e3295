package maps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"skirmish.ai/internal/sim/geom"
)

func TestFileLoader_LoadsRepoMap(t *testing.T) {
	m, err := FileLoader{Dir: filepath.Join("..", "..", "..", "configs", "maps")}.Load(context.Background(), "ridge")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Name != "ridge" || len(m.ControlPoints) != 3 {
		t.Fatalf("unexpected map: %+v", m)
	}
	if _, ok := m.Base(1); !ok {
		t.Fatalf("missing team 1 base")
	}
}

func TestFileLoader_MissingAndTraversal(t *testing.T) {
	l := FileLoader{Dir: t.TempDir()}
	for _, name := range []string{"absent", "../ridge", ""} {
		if _, err := l.Load(context.Background(), name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestFileLoader_RejectsDuplicatePoints(t *testing.T) {
	dir := t.TempDir()
	raw := "min: {x: 0, z: 0}\nmax: {x: 10, z: 10}\ncontrol_points:\n  - {id: A, capture_radius: 1}\n  - {id: A, capture_radius: 1}\n"
	if err := os.WriteFile(filepath.Join(dir, "dup.yaml"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := (FileLoader{Dir: dir}).Load(context.Background(), "dup"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestStatic_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if _, err := (Static{}).Load(ctx, "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestClampInside(t *testing.T) {
	m := Map{Max: geomVec(100, 100)}
	p := m.ClampInside(geomVec(-5, 500))
	if p.X != 1 || p.Z != 99 {
		t.Fatalf("clamp: %+v", p)
	}
	if !m.Contains(p) {
		t.Fatalf("clamped point should be inside")
	}
}

func geomVec(x, z float64) geom.Vec3 { return geom.Vec3{X: x, Z: z} }
