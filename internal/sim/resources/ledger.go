package resources

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrInsufficient is returned when a consumption exceeds the pool. The
	// pool is left untouched; callers decide whether to refuse the action.
	ErrInsufficient = errors.New("insufficient resources")
	ErrUnknownType  = errors.New("unknown resource type")
	ErrBadAmount    = errors.New("amount must be >= 0")
)

type Config struct {
	Caps     map[string]int
	Starting map[string]int
	// RateWindow is the span (seconds) of the rolling observed rate.
	RateWindow float64
}

// Balance is a read-only view of one pool.
type Balance struct {
	Pool        int     `json:"pool"`
	Cap         int     `json:"cap"`
	NetRate     float64 `json:"netRate"`
	RollingRate float64 `json:"rollingRate"`
}

type key struct {
	team int
	typ  string
}

type sample struct {
	at    float64
	delta int
}

type entry struct {
	pool    int
	cap     int
	carry   float64
	samples []sample
}

type flow struct {
	team      int
	typ       string
	perSecond float64
}

// Ledger holds per-team resource pools. It is driven by the match tick and is
// not safe for concurrent use.
type Ledger struct {
	window  float64
	now     float64
	entries map[key]*entry
	flows   map[string]flow

	insufficient uint64
}

func NewLedger(cfg Config, teams []int) *Ledger {
	window := cfg.RateWindow
	if window <= 0 {
		window = 10
	}
	l := &Ledger{
		window:  window,
		entries: map[key]*entry{},
		flows:   map[string]flow{},
	}
	for _, team := range teams {
		for typ, c := range cfg.Caps {
			if c < 0 {
				c = 0
			}
			start := cfg.Starting[typ]
			if start < 0 {
				start = 0
			}
			if start > c {
				start = c
			}
			l.entries[key{team, typ}] = &entry{pool: start, cap: c}
		}
	}
	return l
}

func (l *Ledger) entry(team int, typ string) (*entry, error) {
	e := l.entries[key{team, typ}]
	if e == nil {
		return nil, fmt.Errorf("%w: team=%d type=%s", ErrUnknownType, team, typ)
	}
	return e, nil
}

func (l *Ledger) record(e *entry, delta int) {
	if delta == 0 {
		return
	}
	e.samples = append(e.samples, sample{at: l.now, delta: delta})
	l.prune(e)
}

func (l *Ledger) prune(e *entry) {
	cut := l.now - l.window
	i := 0
	for i < len(e.samples) && e.samples[i].at <= cut {
		i++
	}
	if i > 0 {
		e.samples = append(e.samples[:0], e.samples[i:]...)
	}
}

// Generate adds amount to the pool, clamped to the cap. It returns the new pool.
func (l *Ledger) Generate(team int, typ string, amount int) (int, error) {
	if amount < 0 {
		return 0, ErrBadAmount
	}
	e, err := l.entry(team, typ)
	if err != nil {
		return 0, err
	}
	added := amount
	if room := e.cap - e.pool; added > room {
		added = room
	}
	e.pool += added
	l.record(e, added)
	return e.pool, nil
}

// Consume removes amount from the pool. When the pool is short it returns
// ErrInsufficient without mutating anything.
func (l *Ledger) Consume(team int, typ string, amount int) (int, error) {
	if amount < 0 {
		return 0, ErrBadAmount
	}
	e, err := l.entry(team, typ)
	if err != nil {
		return 0, err
	}
	if amount > e.pool {
		l.insufficient++
		return e.pool, fmt.Errorf("%w: %s need=%d have=%d", ErrInsufficient, typ, amount, e.pool)
	}
	e.pool -= amount
	l.record(e, -amount)
	return e.pool, nil
}

// Spend consumes a multi-resource cost atomically: either every type is
// deducted or none is.
func (l *Ledger) Spend(team int, cost map[string]int) error {
	types := sortedKeys(cost)
	for _, typ := range types {
		e, err := l.entry(team, typ)
		if err != nil {
			return err
		}
		if cost[typ] < 0 {
			return ErrBadAmount
		}
		if cost[typ] > e.pool {
			l.insufficient++
			return fmt.Errorf("%w: %s need=%d have=%d", ErrInsufficient, typ, cost[typ], e.pool)
		}
	}
	for _, typ := range types {
		if _, err := l.Consume(team, typ, cost[typ]); err != nil {
			return err
		}
	}
	return nil
}

// RegisterGenerator adds a continuous income. Re-registering an id replaces it.
func (l *Ledger) RegisterGenerator(id string, team int, typ string, perSecond float64) {
	l.flows[id] = flow{team: team, typ: typ, perSecond: math.Abs(perSecond)}
}

// RegisterConsumer adds a continuous drain. Re-registering an id replaces it.
func (l *Ledger) RegisterConsumer(id string, team int, typ string, perSecond float64) {
	l.flows[id] = flow{team: team, typ: typ, perSecond: -math.Abs(perSecond)}
}

func (l *Ledger) Unregister(id string) { delete(l.flows, id) }

// NetRate is the registered generation minus consumption per second.
func (l *Ledger) NetRate(team int, typ string) float64 {
	var r float64
	for _, f := range l.flows {
		if f.team == team && f.typ == typ {
			r += f.perSecond
		}
	}
	return r
}

// RollingRate is the observed change per second over the configured window.
func (l *Ledger) RollingRate(team int, typ string) float64 {
	e := l.entries[key{team, typ}]
	if e == nil {
		return 0
	}
	l.prune(e)
	sum := 0
	for _, s := range e.samples {
		sum += s.delta
	}
	return float64(sum) / l.window
}

// Tick applies registered flows for dt seconds. Fractions carry over; drains
// stop at zero.
func (l *Ledger) Tick(dt float64) {
	if dt <= 0 {
		return
	}
	l.now += dt
	for k, e := range l.entries {
		e.carry += l.NetRate(k.team, k.typ) * dt
		whole := int(e.carry)
		if whole == 0 {
			l.prune(e)
			continue
		}
		e.carry -= float64(whole)
		before := e.pool
		e.pool += whole
		if e.pool > e.cap {
			e.pool = e.cap
		}
		if e.pool < 0 {
			e.pool = 0
		}
		l.record(e, e.pool-before)
	}
}

func (l *Ledger) Pool(team int, typ string) int {
	if e := l.entries[key{team, typ}]; e != nil {
		return e.pool
	}
	return 0
}

func (l *Ledger) Balances(team int) map[string]Balance {
	out := map[string]Balance{}
	for k, e := range l.entries {
		if k.team != team {
			continue
		}
		out[k.typ] = Balance{
			Pool:        e.pool,
			Cap:         e.cap,
			NetRate:     l.NetRate(k.team, k.typ),
			RollingRate: l.RollingRate(k.team, k.typ),
		}
	}
	return out
}

// InsufficientCount is the number of refused consumptions so far.
func (l *Ledger) InsufficientCount() uint64 { return l.insufficient }

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
