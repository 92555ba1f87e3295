package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/matches.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	session := fs.String("session", "", "session id (players query)")
	_ = fs.Parse(args)

	q := "matches"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "matches.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(os.Stdout, db, q, *limit, *session); err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

// runQuery prints one JSON object per row.
func runQuery(w io.Writer, db *sql.DB, q string, limit int, session string) error {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	switch q {
	case "matches":
		rows, err = db.Query(`SELECT session_id,game_mode,map,ended_at,winning_team,victory_type,duration_seconds,ticks FROM matches ORDER BY ended_at DESC LIMIT ?`, limit)
	case "wins":
		rows, err = db.Query(`SELECT winning_team,victory_type,COUNT(*) AS n FROM matches GROUP BY winning_team,victory_type ORDER BY n DESC LIMIT ?`, limit)
	case "maps":
		rows, err = db.Query(`SELECT map,COUNT(*) AS n,AVG(duration_seconds) AS avg_duration FROM matches GROUP BY map ORDER BY n DESC LIMIT ?`, limit)
	case "players":
		if strings.TrimSpace(session) == "" {
			return fmt.Errorf("players requires -session")
		}
		rows, err = db.Query(`SELECT player_id,name,team FROM match_players WHERE session_id=? ORDER BY team,player_id LIMIT ?`, session, limit)
	default:
		return fmt.Errorf("unknown query %q (matches, wins, maps, players)", q)
	}
	if err != nil {
		return err
	}
	defer rows.Close()
	return printRows(w, rows)
}

func printRows(w io.Writer, rows *sql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		obj := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				obj[c] = string(b)
				continue
			}
			obj[c] = vals[i]
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return rows.Err()
}
