package main

import (
	"fmt"
	"io"

	"skirmish.ai/internal/persistence/indexdb"
	"skirmish.ai/internal/sim/lobby"
)

// writeMetrics renders the lobby snapshot in Prometheus text format.
func writeMetrics(w io.Writer, m lobby.Metrics, idx *indexdb.Stats) {
	fmt.Fprintf(w, "# HELP skirmish_lobby_tick Current lobby tick.\n")
	fmt.Fprintf(w, "# TYPE skirmish_lobby_tick gauge\n")
	fmt.Fprintf(w, "skirmish_lobby_tick %d\n", m.Tick)

	fmt.Fprintf(w, "# HELP skirmish_sessions Sessions by state.\n")
	fmt.Fprintf(w, "# TYPE skirmish_sessions gauge\n")
	byState := map[string]int{"waiting": 0, "active": 0, "ended": 0}
	for _, s := range m.SessionList {
		byState[s.State]++
	}
	for _, st := range []string{"waiting", "active", "ended"} {
		fmt.Fprintf(w, "skirmish_sessions{state=%q} %d\n", st, byState[st])
	}

	fmt.Fprintf(w, "# HELP skirmish_players Connected players in sessions.\n")
	fmt.Fprintf(w, "# TYPE skirmish_players gauge\n")
	fmt.Fprintf(w, "skirmish_players %d\n", m.Players)

	fmt.Fprintf(w, "# HELP skirmish_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(w, "# TYPE skirmish_queue_depth gauge\n")
	fmt.Fprintf(w, "skirmish_queue_depth{queue=%q} %d\n", "join", m.QueueDepths.Join)
	fmt.Fprintf(w, "skirmish_queue_depth{queue=%q} %d\n", "leave", m.QueueDepths.Leave)
	fmt.Fprintf(w, "skirmish_queue_depth{queue=%q} %d\n", "inbox", m.QueueDepths.Inbox)

	fmt.Fprintf(w, "# HELP skirmish_step_ms Last lobby step duration in milliseconds.\n")
	fmt.Fprintf(w, "# TYPE skirmish_step_ms gauge\n")
	fmt.Fprintf(w, "skirmish_step_ms %.3f\n", m.StepMS)

	fmt.Fprintf(w, "# HELP skirmish_match_units Units in each active match.\n")
	fmt.Fprintf(w, "# TYPE skirmish_match_units gauge\n")
	for _, s := range m.SessionList {
		if s.State == "active" {
			fmt.Fprintf(w, "skirmish_match_units{session=%q} %d\n", s.ID, s.Units)
		}
	}

	if idx == nil {
		return
	}
	fmt.Fprintf(w, "# HELP skirmish_index_queue_depth Pending match records.\n")
	fmt.Fprintf(w, "# TYPE skirmish_index_queue_depth gauge\n")
	fmt.Fprintf(w, "skirmish_index_queue_depth %d\n", idx.QueueDepth)
	fmt.Fprintf(w, "# HELP skirmish_index_dropped_total Match records dropped under backpressure.\n")
	fmt.Fprintf(w, "# TYPE skirmish_index_dropped_total counter\n")
	fmt.Fprintf(w, "skirmish_index_dropped_total %d\n", idx.DropTotal)
	fmt.Fprintf(w, "# HELP skirmish_index_write_errors_total Failed match record writes.\n")
	fmt.Fprintf(w, "# TYPE skirmish_index_write_errors_total counter\n")
	fmt.Fprintf(w, "skirmish_index_write_errors_total %d\n", idx.WriteErrTotal)
}
