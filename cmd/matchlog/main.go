// Command matchlog prints a summary of one match's event log.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	persistlog "skirmish.ai/internal/persistence/log"
	"skirmish.ai/internal/sim/match"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory")
		session  = flag.String("session", "", "session id (reads <data>/matches/<session>)")
		dir      = flag.String("dir", "", "event log directory (overrides -data/-session)")
		fromTick = flag.Uint64("from_tick", 0, "first tick to include")
		toTick   = flag.Uint64("to_tick", 0, "last tick to include (0 = end)")
		types    = flag.String("types", "", "comma-separated event types to print")
		dump     = flag.Bool("print", false, "print every selected event as JSON")
	)
	flag.Parse()

	d := strings.TrimSpace(*dir)
	if d == "" {
		if strings.TrimSpace(*session) == "" {
			fmt.Fprintln(os.Stderr, "missing -session or -dir")
			os.Exit(2)
		}
		d = persistlog.MatchDir(*dataDir, *session)
	}

	f := filter{from: *fromTick, to: *toTick, types: splitTypes(*types)}
	sum := newSummary()
	enc := json.NewEncoder(os.Stdout)
	err := persistlog.ReadEvents(d, func(e match.Event) error {
		if !f.keep(e) {
			return nil
		}
		sum.add(e)
		if *dump {
			return enc.Encode(e)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	sum.write(os.Stdout)
}

type filter struct {
	from, to uint64
	types    map[string]bool
}

func splitTypes(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out[t] = true
		}
	}
	return out
}

func (f filter) keep(e match.Event) bool {
	if e.Tick < f.from || (f.to != 0 && e.Tick > f.to) {
		return false
	}
	return len(f.types) == 0 || f.types[e.Type]
}

type summary struct {
	session  string
	events   int
	lastTick uint64
	byType   map[string]int
	perTeam  map[int]map[string]int
	players  map[string]int
	ended    *match.Event
}

func newSummary() *summary {
	return &summary{byType: map[string]int{}, perTeam: map[int]map[string]int{}, players: map[string]int{}}
}

func (s *summary) add(e match.Event) {
	s.events++
	if s.session == "" {
		s.session = e.Session
	}
	if e.Tick > s.lastTick {
		s.lastTick = e.Tick
	}
	s.byType[e.Type]++
	if e.Team != 0 {
		if s.perTeam[e.Team] == nil {
			s.perTeam[e.Team] = map[string]int{}
		}
		s.perTeam[e.Team][e.Type]++
	}
	switch e.Type {
	case "PLAYER_JOINED":
		if id, ok := e.Data["player"].(string); ok {
			s.players[id] = e.Team
		}
	case "MATCH_ENDED":
		ev := e
		s.ended = &ev
	}
}

func (s *summary) write(w io.Writer) {
	fmt.Fprintf(w, "session=%s events=%d last_tick=%d players=%d\n", s.session, s.events, s.lastTick, len(s.players))

	typs := make([]string, 0, len(s.byType))
	for t := range s.byType {
		typs = append(typs, t)
	}
	sort.Strings(typs)
	for _, t := range typs {
		fmt.Fprintf(w, "  %-14s %d\n", t, s.byType[t])
	}

	teams := make([]int, 0, len(s.perTeam))
	for t := range s.perTeam {
		teams = append(teams, t)
	}
	sort.Ints(teams)
	for _, t := range teams {
		c := s.perTeam[t]
		fmt.Fprintf(w, "team %d: captured=%d deaths=%d commands=%d\n", t, c["CAPTURED"], c["DIED"], c["COMMAND"])
	}

	if s.ended == nil {
		fmt.Fprintln(w, "result: not finished")
		return
	}
	vt, _ := s.ended.Data["victory_type"].(string)
	dur, _ := s.ended.Data["duration_s"].(float64)
	fmt.Fprintf(w, "result: winner=%d victory=%s duration=%.1fs tick=%d\n", s.ended.Team, vt, dur, s.ended.Tick)
}
