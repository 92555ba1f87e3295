package resources

import (
	"errors"
	"math/rand"
	"testing"
)

func newTestLedger() *Ledger {
	return NewLedger(Config{
		Caps:       map[string]int{"SUPPLY": 100, "ENERGY": 50},
		Starting:   map[string]int{"SUPPLY": 20},
		RateWindow: 10,
	}, []int{1, 2})
}

func TestConsume_InsufficientLeavesPoolUntouched(t *testing.T) {
	l := newTestLedger()
	pool, err := l.Consume(1, "SUPPLY", 21)
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
	if pool != 20 || l.Pool(1, "SUPPLY") != 20 {
		t.Fatalf("pool mutated: %d", l.Pool(1, "SUPPLY"))
	}
	if l.InsufficientCount() != 1 {
		t.Fatalf("insufficient count: %d", l.InsufficientCount())
	}
	if _, err := l.Consume(1, "SUPPLY", 20); err != nil {
		t.Fatalf("exact consume: %v", err)
	}
	if l.Pool(1, "SUPPLY") != 0 {
		t.Fatalf("pool: %d", l.Pool(1, "SUPPLY"))
	}
}

func TestGenerate_ClampsToCap(t *testing.T) {
	l := newTestLedger()
	pool, err := l.Generate(2, "ENERGY", 80)
	if err != nil || pool != 50 {
		t.Fatalf("generate: pool=%d err=%v", pool, err)
	}
	if _, err := l.Generate(2, "GOLD", 1); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, err := l.Generate(2, "ENERGY", -1); !errors.Is(err, ErrBadAmount) {
		t.Fatalf("expected ErrBadAmount, got %v", err)
	}
}

func TestPoolStaysWithinBoundsForRandomSequences(t *testing.T) {
	l := newTestLedger()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		amt := rng.Intn(60)
		if rng.Intn(2) == 0 {
			_, _ = l.Generate(1, "SUPPLY", amt)
		} else {
			_, _ = l.Consume(1, "SUPPLY", amt)
		}
		if p := l.Pool(1, "SUPPLY"); p < 0 || p > 100 {
			t.Fatalf("step %d: pool out of bounds: %d", i, p)
		}
	}
}

func TestSpend_IsAllOrNothing(t *testing.T) {
	l := newTestLedger()
	_, _ = l.Generate(1, "ENERGY", 5)
	err := l.Spend(1, map[string]int{"SUPPLY": 10, "ENERGY": 6})
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
	if l.Pool(1, "SUPPLY") != 20 || l.Pool(1, "ENERGY") != 5 {
		t.Fatalf("partial spend applied: supply=%d energy=%d", l.Pool(1, "SUPPLY"), l.Pool(1, "ENERGY"))
	}
	if err := l.Spend(1, map[string]int{"SUPPLY": 10, "ENERGY": 5}); err != nil {
		t.Fatalf("spend: %v", err)
	}
	if l.Pool(1, "SUPPLY") != 10 || l.Pool(1, "ENERGY") != 0 {
		t.Fatalf("after spend: supply=%d energy=%d", l.Pool(1, "SUPPLY"), l.Pool(1, "ENERGY"))
	}
}

func TestTick_AppliesFlowsWithCarryAndFloor(t *testing.T) {
	l := newTestLedger()
	l.RegisterGenerator("base", 1, "SUPPLY", 1.5)
	for i := 0; i < 4; i++ {
		l.Tick(1)
	}
	if got := l.Pool(1, "SUPPLY"); got != 26 {
		t.Fatalf("pool after 4s at 1.5/s: got %d want 26", got)
	}
	if got := l.NetRate(1, "SUPPLY"); got != 1.5 {
		t.Fatalf("net rate: %v", got)
	}
	if got := l.RollingRate(1, "SUPPLY"); got != 0.6 {
		t.Fatalf("rolling rate: got %v want 0.6", got)
	}

	l.RegisterConsumer("upkeep", 1, "SUPPLY", 20)
	for i := 0; i < 10; i++ {
		l.Tick(1)
	}
	if got := l.Pool(1, "SUPPLY"); got != 0 {
		t.Fatalf("drain should floor at zero, got %d", got)
	}
	l.Unregister("upkeep")
	l.Unregister("base")
	if l.NetRate(1, "SUPPLY") != 0 {
		t.Fatalf("net rate after unregister: %v", l.NetRate(1, "SUPPLY"))
	}
	if l.Pool(2, "SUPPLY") != 20 {
		t.Fatalf("team 2 should be unaffected: %d", l.Pool(2, "SUPPLY"))
	}
}
