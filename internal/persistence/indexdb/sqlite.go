package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// MatchRecord is the finished-match row plus its roster.
type MatchRecord struct {
	SessionID       string         `json:"session_id"`
	GameMode        string         `json:"game_mode"`
	Map             string         `json:"map"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         time.Time      `json:"ended_at"`
	WinningTeam     int            `json:"winning_team"`
	VictoryType     string         `json:"victory_type"`
	DurationSeconds float64        `json:"duration_seconds"`
	Ticks           uint64         `json:"ticks"`
	ControlCounts   map[int]int    `json:"control_counts"`
	Players         []PlayerRecord `json:"players"`
}

type PlayerRecord struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Team     int    `json:"team"`
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTotal     uint64 `json:"drop_total"`
	WriteErrTotal uint64 `json:"write_err_total"`
}

// SQLiteIndex is a read model of finished matches. Writes are queued and
// applied by a single writer goroutine so the simulation never waits on
// disk.
type SQLiteIndex struct {
	db  *sql.DB
	log zerolog.Logger

	ch   chan MatchRecord
	wg   sync.WaitGroup
	once sync.Once

	closed   atomic.Bool
	drops    atomic.Uint64
	writeErr atomic.Uint64
}

func OpenSQLite(path string, log zerolog.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: log.With().Str("component", "indexdb").Logger(),
		ch:  make(chan MatchRecord, 1024),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			session_id TEXT PRIMARY KEY,
			game_mode TEXT NOT NULL,
			map TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			winning_team INTEGER NOT NULL,
			victory_type TEXT NOT NULL,
			duration_seconds REAL NOT NULL,
			ticks INTEGER NOT NULL,
			control_counts TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_ended_at ON matches(ended_at);`,
		`CREATE TABLE IF NOT EXISTS match_players (
			session_id TEXT NOT NULL REFERENCES matches(session_id) ON DELETE CASCADE,
			player_id TEXT NOT NULL,
			name TEXT NOT NULL,
			team INTEGER NOT NULL,
			PRIMARY KEY (session_id, player_id)
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordMatch queues a result. It never blocks; when the writer falls
// behind the record is dropped and counted (the match event log keeps the
// full history).
func (s *SQLiteIndex) RecordMatch(r MatchRecord) {
	if s == nil || s.closed.Load() || r.SessionID == "" {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.drops.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.drops.Load(),
		WriteErrTotal: s.writeErr.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		if err := s.write(context.Background(), r); err != nil {
			s.writeErr.Add(1)
			s.log.Warn().Err(err).Str("session", r.SessionID).Msg("record match")
		}
	}
}

func (s *SQLiteIndex) write(ctx context.Context, r MatchRecord) error {
	counts, err := json.Marshal(r.ControlCounts)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO matches(session_id,game_mode,map,started_at,ended_at,winning_team,victory_type,duration_seconds,ticks,control_counts) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.SessionID, r.GameMode, r.Map,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.EndedAt.UTC().Format(time.RFC3339Nano),
		r.WinningTeam, r.VictoryType, r.DurationSeconds, int64(r.Ticks), string(counts),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM match_players WHERE session_id=?`, r.SessionID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO match_players(session_id,player_id,name,team) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range r.Players {
		if _, err := stmt.ExecContext(ctx, r.SessionID, p.PlayerID, p.Name, p.Team); err != nil {
			return err
		}
	}
	return tx.Commit()
}

var ErrNotFound = errors.New("match not found")

// RecentMatches returns up to limit matches, newest first.
func (s *SQLiteIndex) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM matches ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	out := make([]MatchRecord, 0, len(ids))
	for _, id := range ids {
		r, err := s.Match(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLiteIndex) Match(ctx context.Context, sessionID string) (MatchRecord, error) {
	var (
		r              MatchRecord
		started, ended string
		counts         string
		ticks          int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id,game_mode,map,started_at,ended_at,winning_team,victory_type,duration_seconds,ticks,control_counts FROM matches WHERE session_id=?`,
		sessionID,
	).Scan(&r.SessionID, &r.GameMode, &r.Map, &started, &ended, &r.WinningTeam, &r.VictoryType, &r.DurationSeconds, &ticks, &counts)
	if errors.Is(err, sql.ErrNoRows) {
		return MatchRecord{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return MatchRecord{}, err
	}
	r.Ticks = uint64(ticks)
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	r.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
	if err := json.Unmarshal([]byte(counts), &r.ControlCounts); err != nil {
		return MatchRecord{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id,name,team FROM match_players WHERE session_id=? ORDER BY team, player_id`, sessionID)
	if err != nil {
		return MatchRecord{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p PlayerRecord
		if err := rows.Scan(&p.PlayerID, &p.Name, &p.Team); err != nil {
			return MatchRecord{}, err
		}
		r.Players = append(r.Players, p)
	}
	return r, rows.Err()
}
