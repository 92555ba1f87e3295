// Package lobby owns every session: joins, team assignment, readiness,
// idempotent match start, leaves, inactivity expiry and match teardown.
// All of it runs on the single goroutine in Manager.Run, which also drives
// the tick of every active match.
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"skirmish.ai/internal/persistence/indexdb"
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/aicmd"
	"skirmish.ai/internal/sim/maps"
	"skirmish.ai/internal/sim/match"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/telemetry"
)

var ErrStartupTimeout = errors.New("startup timed out")

// EventLog receives a session's match events and is closed at teardown.
type EventLog interface {
	match.EventSink
	Close() error
}

type ResultIndex interface {
	RecordMatch(r indexdb.MatchRecord)
}

type Config struct {
	Tuning      tuning.Tuning
	Maps        maps.Loader
	Planner     aicmd.Planner
	PlanTimeout time.Duration

	Index        ResultIndex
	OpenEventLog func(sessionID string) (EventLog, error)
	Telemetry    *telemetry.Instruments
	Log          zerolog.Logger

	Now   func() time.Time
	NewID func() string
}

type Manager struct {
	cfg Config
	log zerolog.Logger

	join    chan JoinRequest
	leave   chan string
	inbox   chan Request
	startup chan startupResult
	expiry  chan expiry
	done    chan struct{}
	runCtx  context.Context

	pendingJoins    []JoinRequest
	pendingLeaves   []string
	pendingRequests []Request
	pendingStartups []startupResult
	pendingExpiries []expiry

	sessions map[string]*Session
	order    []string
	byPeer   map[string]string

	tick    uint64
	metrics atomic.Value
}

func New(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Planner == nil {
		cfg.Planner = aicmd.KeywordPlanner{}
	}
	return &Manager{
		cfg:      cfg,
		log:      cfg.Log.With().Str("component", "lobby").Logger(),
		join:     make(chan JoinRequest, 256),
		leave:    make(chan string, 256),
		inbox:    make(chan Request, 1024),
		startup:  make(chan startupResult, 64),
		expiry:   make(chan expiry, 64),
		done:     make(chan struct{}),
		runCtx:   context.Background(),
		sessions: map[string]*Session{},
		byPeer:   map[string]string{},
	}
}

func (m *Manager) Join() chan<- JoinRequest { return m.join }
func (m *Manager) Leave() chan<- string     { return m.leave }
func (m *Manager) Inbox() chan<- Request    { return m.inbox }

func (m *Manager) TickRateHz() int { return m.cfg.Tuning.TickRateHz }

func (m *Manager) Run(ctx context.Context) error {
	m.runCtx = ctx
	interval := time.Second / time.Duration(m.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-m.join:
			m.pendingJoins = append(m.pendingJoins, req)
		case id := <-m.leave:
			m.pendingLeaves = append(m.pendingLeaves, id)
		case req := <-m.inbox:
			m.pendingRequests = append(m.pendingRequests, req)
		case r := <-m.startup:
			m.pendingStartups = append(m.pendingStartups, r)
		case e := <-m.expiry:
			m.pendingExpiries = append(m.pendingExpiries, e)
		case <-ticker.C:
			m.Step(interval.Seconds())
		}
	}
}

// drain moves anything still buffered in the channels into the pending
// queues without blocking.
func (m *Manager) drain() {
	for {
		select {
		case req := <-m.join:
			m.pendingJoins = append(m.pendingJoins, req)
		case id := <-m.leave:
			m.pendingLeaves = append(m.pendingLeaves, id)
		case req := <-m.inbox:
			m.pendingRequests = append(m.pendingRequests, req)
		case r := <-m.startup:
			m.pendingStartups = append(m.pendingStartups, r)
		case e := <-m.expiry:
			m.pendingExpiries = append(m.pendingExpiries, e)
		default:
			return
		}
	}
}

// Step applies queued requests at the tick boundary, then advances every
// active match by dt seconds.
func (m *Manager) Step(dt float64) {
	start := time.Now()
	m.drain()

	// Leaves first, so a departing peer's queued requests find no session.
	leaves := m.pendingLeaves
	m.pendingLeaves = nil
	for _, id := range leaves {
		m.handleLeave(id)
	}
	for _, req := range m.pendingJoins {
		m.handleJoin(req)
	}
	m.pendingJoins = m.pendingJoins[:0]
	for _, req := range m.pendingRequests {
		m.handleRequest(req)
	}
	m.pendingRequests = m.pendingRequests[:0]
	for _, r := range m.pendingStartups {
		m.handleStartup(r)
	}
	m.pendingStartups = m.pendingStartups[:0]
	for _, e := range m.pendingExpiries {
		m.handleExpiry(e)
	}
	m.pendingExpiries = m.pendingExpiries[:0]

	for _, id := range append([]string(nil), m.order...) {
		s := m.sessions[id]
		if s == nil || s.State != Active || s.match == nil {
			continue
		}
		res := s.match.Advance(dt)
		for _, peerID := range res.Pruned {
			m.handleLeave(peerID)
		}
		if res.Outcome != nil && !s.closed {
			m.finish(s, res.Outcome)
		}
	}

	m.tick++
	m.storeMetrics(float64(time.Since(start).Microseconds()) / 1000.0)
}

func (m *Manager) shutdown() {
	select {
	case <-m.done:
		return
	default:
	}
	close(m.done)
	for _, id := range append([]string(nil), m.order...) {
		if s := m.sessions[id]; s != nil {
			m.destroy(s, "shutdown")
		}
	}
}

func (m *Manager) session(peerID string) (*Session, *Player) {
	sid, ok := m.byPeer[peerID]
	if !ok {
		return nil, nil
	}
	s := m.sessions[sid]
	if s == nil {
		return nil, nil
	}
	return s, s.players[peerID]
}

func (m *Manager) handleJoin(req JoinRequest) {
	if req.Peer == nil {
		return
	}
	id := req.Peer.ID()
	fail := func(code, summary string) {
		m.send(req.Peer, protocol.JoinResultMsg{Type: protocol.TypeJoinResult, Code: code, Summary: summary})
	}
	if sid, ok := m.byPeer[id]; ok {
		fail(protocol.ErrBadRequest, fmt.Sprintf("already in session %s", sid))
		return
	}
	mode := req.GameMode
	if mode == "" {
		mode = m.cfg.Tuning.Sessions.DefaultGameMode
	}
	if mode != ModeVersus && mode != ModeSolo {
		fail(protocol.ErrBadRequest, fmt.Sprintf("unknown game mode %q", mode))
		return
	}
	mapName := req.Map
	if mapName == "" {
		mapName = m.cfg.Tuning.Sessions.DefaultMap
	}

	var s *Session
	if req.SessionID != "" {
		s = m.sessions[req.SessionID]
		if s == nil {
			fail(protocol.ErrSessionNotFound, fmt.Sprintf("session %s not found", req.SessionID))
			return
		}
		if s.State != Waiting || s.starting {
			fail(protocol.ErrAlreadyStarted, fmt.Sprintf("session %s already started", s.ID))
			return
		}
	} else if s = m.findOpen(mode, mapName); s == nil {
		s = m.newSession(mode, mapName)
	}
	if len(s.players) >= s.maxPlayers(m.cfg.Tuning.Sessions.MaxPlayers) {
		fail(protocol.ErrSessionFull, fmt.Sprintf("session %s is full", s.ID))
		return
	}

	name := req.Name
	if name == "" {
		name = id
	}
	p := &Player{ID: id, Name: name, Team: s.pickTeam(), Peer: req.Peer}
	s.players[id] = p
	s.order = append(s.order, id)
	m.byPeer[id] = s.ID
	m.touch(s)
	m.log.Info().Str("session", s.ID).Str("peer", id).Int("team", p.Team).Msg("player joined")

	data := s.data()
	m.send(req.Peer, protocol.JoinResultMsg{
		Type:        protocol.TypeJoinResult,
		Success:     true,
		Summary:     fmt.Sprintf("joined session %s on team %d", s.ID, p.Team),
		SessionID:   s.ID,
		PlayerTeam:  p.Team,
		SessionData: &data,
	})
	m.broadcastLobby(s, true, fmt.Sprintf("%s joined team %d", name, p.Team), "")
}

// findOpen returns the oldest waiting session that another player may join.
func (m *Manager) findOpen(mode, mapName string) *Session {
	if mode == ModeSolo {
		return nil
	}
	for _, id := range m.order {
		s := m.sessions[id]
		if s == nil || s.State != Waiting || s.starting || s.GameMode != mode || s.MapName != mapName {
			continue
		}
		if len(s.players) < s.maxPlayers(m.cfg.Tuning.Sessions.MaxPlayers) {
			return s
		}
	}
	return nil
}

func (m *Manager) newSession(mode, mapName string) *Session {
	now := m.cfg.Now()
	s := &Session{
		ID:           m.cfg.NewID(),
		State:        Waiting,
		GameMode:     mode,
		MapName:      mapName,
		players:      map[string]*Player{},
		CreatedAt:    now,
		LastActivity: now,
	}
	m.sessions[s.ID] = s
	m.order = append(m.order, s.ID)
	m.log.Info().Str("session", s.ID).Str("mode", mode).Str("map", mapName).Msg("session created")
	return s
}

func (m *Manager) handleRequest(req Request) {
	s, p := m.session(req.requester())
	if s == nil || p == nil {
		return
	}
	m.touch(s)
	switch r := req.(type) {
	case ReadyRequest:
		if s.State != Waiting {
			m.sendLobbyTo(p, s, false, "session already started", protocol.ErrAlreadyStarted)
			return
		}
		p.Ready = r.Ready
		m.broadcastLobby(s, true, fmt.Sprintf("%s ready=%t", p.Name, p.Ready), "")
		if s.allReady() {
			m.start(s)
		}
	case ForceStartRequest:
		if s.State == Waiting && !s.starting && !s.allReady() {
			m.sendLobbyTo(p, s, false, "not all players are ready", protocol.ErrNotReady)
			return
		}
		m.start(s)
	case CommandRequest:
		if s.State != Active {
			m.send(p.Peer, protocol.CommandFeedbackMsg{
				Type:      protocol.TypeCommandFeedback,
				RequestID: r.RequestID,
				Summary:   "match is not active",
				StatusTag: aicmd.StatusFailed,
				UnitIDs:   r.UnitIDs,
			})
			return
		}
		s.match.SubmitCommand(match.CommandRequest{
			RequestID:   r.RequestID,
			PeerID:      p.ID,
			Team:        p.Team,
			CommandText: r.CommandText,
			UnitIDs:     r.UnitIDs,
		})
	case SpawnRequest:
		if s.State != Active {
			m.send(p.Peer, protocol.SpawnResultMsg{
				Type:      protocol.TypeSpawnResult,
				Code:      protocol.ErrNotActive,
				Summary:   "match is not active",
				Archetype: r.Archetype,
			})
			return
		}
		s.match.SubmitSpawn(match.SpawnRequest{PeerID: p.ID, Team: p.Team, Archetype: r.Archetype})
	}
}

// start begins the asynchronous map load. A session that is already
// starting or active ignores the request.
func (m *Manager) start(s *Session) {
	if s.starting || s.State == Active {
		m.log.Warn().Str("session", s.ID).Str("state", s.State.String()).Bool("starting", s.starting).Msg("duplicate start ignored")
		return
	}
	if s.State != Waiting {
		return
	}
	s.starting = true
	s.startGen++
	gen, id, name := s.startGen, s.ID, s.MapName
	timeout := time.Duration(m.cfg.Tuning.Sessions.StartupTimeoutSeconds) * time.Second
	ctx := m.runCtx
	go func() {
		lctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		done := make(chan startupResult, 1)
		go func() {
			mp, err := m.cfg.Maps.Load(lctx, name)
			done <- startupResult{m: mp, err: err}
		}()
		var r startupResult
		select {
		case r = <-done:
		case <-lctx.Done():
			r.err = fmt.Errorf("%w: map %q: %v", ErrStartupTimeout, name, lctx.Err())
		}
		r.session, r.gen = id, gen
		select {
		case m.startup <- r:
		case <-m.done:
		}
	}()
	m.broadcastLobby(s, true, "match starting", "")
}

func (m *Manager) handleStartup(r startupResult) {
	s := m.sessions[r.session]
	if s == nil || !s.starting || r.gen != s.startGen {
		return
	}
	s.starting = false
	if s.State != Waiting {
		return
	}
	err := r.err
	if err == nil {
		err = m.activate(s, r.m)
	}
	if err != nil {
		m.log.Warn().Err(err).Str("session", s.ID).Msg("startup failed")
		m.broadcastLobby(s, false, "startup failed: "+err.Error(), protocol.ErrStartupFailed)
	}
}

// activate registers the roster with a new match world and flips the
// session to active.
func (m *Manager) activate(s *Session, mp maps.Map) error {
	if len(s.players) == 0 {
		return errors.New("no players left")
	}
	var events EventLog
	if m.cfg.OpenEventLog != nil {
		ev, err := m.cfg.OpenEventLog(s.ID)
		if err != nil {
			m.log.Warn().Err(err).Str("session", s.ID).Msg("event log unavailable")
		} else {
			events = ev
		}
	}
	var sink match.EventSink
	if events != nil {
		sink = events
	}

	mt, err := match.New(m.runCtx, match.Config{
		SessionID:    s.ID,
		GameMode:     s.GameMode,
		Map:          mp,
		Tuning:       m.cfg.Tuning,
		TrackedTeams: s.humanTeams(),
		Planner:      m.cfg.Planner,
		PlanTimeout:  m.cfg.PlanTimeout,
		Roster:       roster{s: s},
		Events:       sink,
		Telemetry:    m.cfg.Telemetry,
		Log:          m.cfg.Log,
	})
	if err != nil {
		if events != nil {
			_ = events.Close()
		}
		return err
	}
	s.match = mt
	s.events = events
	s.State = Active
	s.StartedAt = m.cfg.Now()

	for _, p := range s.Players() {
		if events != nil {
			_ = events.WriteEvent(match.Event{Session: s.ID, Type: "PLAYER_JOINED", Team: p.Team, Data: map[string]any{"player": p.ID, "name": p.Name}})
		}
		m.send(p.Peer, protocol.MatchStartedMsg{
			Type:       protocol.TypeMatchStarted,
			SessionID:  s.ID,
			PlayerTeam: p.Team,
			Map:        mp.Name,
			GameMode:   s.GameMode,
		})
	}
	m.broadcastLobby(s, true, "match started", "")
	return nil
}

func (m *Manager) handleLeave(peerID string) {
	s, p := m.session(peerID)
	delete(m.byPeer, peerID)
	if s == nil || p == nil {
		return
	}
	s.removePlayer(peerID)
	if s.match != nil {
		s.match.CancelPeer(peerID)
	}
	if s.events != nil {
		_ = s.events.WriteEvent(match.Event{Session: s.ID, Tick: m.matchTick(s), Type: "PLAYER_LEFT", Team: p.Team, Data: map[string]any{"player": p.ID}})
	}
	m.log.Info().Str("session", s.ID).Str("peer", peerID).Msg("player left")
	if len(s.players) == 0 {
		m.destroy(s, "empty")
		return
	}
	if s.match != nil && s.teamCounts()[p.Team] == 0 {
		s.match.TeamLeft(p.Team)
	}
	m.touch(s)
	m.broadcastLobby(s, true, fmt.Sprintf("%s left", p.Name), "")
}

func (m *Manager) matchTick(s *Session) uint64 {
	if s.match == nil {
		return 0
	}
	return s.match.Tick()
}

// finish handles a match that ended this tick.
func (m *Manager) finish(s *Session, out *match.Outcome) {
	s.State = Ended
	counts := make(map[string]int, len(out.FinalControlCounts))
	for team, n := range out.FinalControlCounts {
		counts[strconv.Itoa(team)] = n
	}
	msg := protocol.MatchEndedMsg{
		Type:               protocol.TypeMatchEnded,
		SessionID:          s.ID,
		WinningTeam:        out.WinningTeam,
		VictoryType:        out.VictoryType,
		DurationSeconds:    out.DurationSeconds,
		FinalControlCounts: counts,
	}
	for _, p := range s.Players() {
		m.send(p.Peer, msg)
	}
	m.recordResult(s, out)
	s.match.Close()
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			m.log.Warn().Err(err).Str("session", s.ID).Msg("close event log")
		}
		s.events = nil
	}
	m.touch(s)
}

func (m *Manager) recordResult(s *Session, out *match.Outcome) {
	if m.cfg.Index == nil {
		return
	}
	rec := indexdb.MatchRecord{
		SessionID:       s.ID,
		GameMode:        s.GameMode,
		Map:             s.MapName,
		StartedAt:       s.StartedAt,
		EndedAt:         m.cfg.Now(),
		WinningTeam:     out.WinningTeam,
		VictoryType:     out.VictoryType,
		DurationSeconds: out.DurationSeconds,
		Ticks:           out.Tick,
		ControlCounts:   out.FinalControlCounts,
	}
	for _, p := range s.Players() {
		rec.Players = append(rec.Players, indexdb.PlayerRecord{PlayerID: p.ID, Name: p.Name, Team: p.Team})
	}
	m.cfg.Index.RecordMatch(rec)
}

// destroy tears a session down. An active match is recorded as abandoned.
func (m *Manager) destroy(s *Session, reason string) {
	if s.closed {
		return
	}
	if s.idle != nil {
		s.idle.Stop()
	}
	if s.match != nil {
		if out := s.match.Abandon(); out != nil {
			m.recordResult(s, out)
		}
		s.match.Close()
	}
	if s.events != nil {
		_ = s.events.Close()
		s.events = nil
	}
	s.closed = true
	for _, id := range s.order {
		delete(m.byPeer, id)
	}
	delete(m.sessions, s.ID)
	for i, id := range m.order {
		if id == s.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.log.Info().Str("session", s.ID).Str("reason", reason).Msg("session destroyed")
}

// touch records activity and re-arms the inactivity timer.
func (m *Manager) touch(s *Session) {
	s.LastActivity = m.cfg.Now()
	s.idleGen++
	if s.idle != nil {
		s.idle.Stop()
	}
	d := time.Duration(m.cfg.Tuning.Sessions.IdleTimeoutSeconds) * time.Second
	if d <= 0 {
		return
	}
	e := expiry{session: s.ID, gen: s.idleGen}
	s.idle = time.AfterFunc(d, func() {
		select {
		case m.expiry <- e:
		case <-m.done:
		}
	})
}

func (m *Manager) handleExpiry(e expiry) {
	s := m.sessions[e.session]
	if s == nil || s.closed || e.gen != s.idleGen {
		return
	}
	if s.State == Active && len(s.players) > 0 {
		m.touch(s)
		return
	}
	m.broadcastLobby(s, false, "session expired", "")
	m.destroy(s, "idle")
}

func (m *Manager) broadcastLobby(s *Session, ok bool, summary, code string) {
	msg := protocol.LobbyUpdateMsg{
		Type:        protocol.TypeLobbyUpdate,
		Success:     ok,
		Summary:     summary,
		Code:        code,
		SessionData: s.data(),
	}
	for _, p := range s.Players() {
		m.send(p.Peer, msg)
	}
}

func (m *Manager) sendLobbyTo(p *Player, s *Session, ok bool, summary, code string) {
	m.send(p.Peer, protocol.LobbyUpdateMsg{
		Type:        protocol.TypeLobbyUpdate,
		Success:     ok,
		Summary:     summary,
		Code:        code,
		SessionData: s.data(),
	})
}

// send never blocks. A closed peer is queued to leave at the next tick.
func (m *Manager) send(p match.Peer, msg any) {
	if p == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		m.log.Error().Err(err).Msg("marshal")
		return
	}
	if err := p.Send(b); errors.Is(err, match.ErrPeerClosed) {
		m.pendingLeaves = append(m.pendingLeaves, p.ID())
	}
}
