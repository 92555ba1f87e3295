// Package ws is the client transport: one websocket per peer, a HELLO /
// WELCOME handshake, schema validation and rate limiting of inbound
// messages, and routing into the lobby's channels.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/lobby"
)

// Lobby is the part of lobby.Manager the transport feeds.
type Lobby interface {
	Join() chan<- lobby.JoinRequest
	Leave() chan<- string
	Inbox() chan<- lobby.Request
}

type Config struct {
	Lobby     Lobby
	Validator *protocol.Validator
	Log       zerolog.Logger

	TickRateHz          int
	BroadcastEveryTicks int

	// MessagesPerSecond and Burst bound inbound messages per connection.
	// Zero disables the limit.
	MessagesPerSecond float64
	Burst             int

	OutQueue     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	cfg Config
	log zerolog.Logger

	upgrader websocket.Upgrader
	newID    func() string
}

func NewServer(cfg Config) *Server {
	if cfg.OutQueue <= 0 {
		cfg.OutQueue = 32
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Server{
		cfg: cfg,
		log: cfg.Log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		newID: uuid.NewString,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		p, name := s.handshake(conn)
		if p == nil {
			return
		}
		log := s.log.With().Str("peer", p.id).Str("name", name).Logger()
		log.Info().Str("remote", r.RemoteAddr).Msg("peer connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go s.writeLoop(ctx, cancel, conn, p)

		var limiter *rate.Limiter
		if s.cfg.MessagesPerSecond > 0 {
			burst := s.cfg.Burst
			if burst <= 0 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), burst)
		}

		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if limiter != nil && !limiter.Allow() {
				s.reject(p, protocol.ErrRateLimit, "too many messages")
				continue
			}
			if !s.route(ctx, p, name, msg) {
				break
			}
		}

		p.close()
		cancel()
		select {
		case s.cfg.Lobby.Leave() <- p.id:
		case <-time.After(s.cfg.WriteTimeout):
			log.Warn().Msg("lobby leave queue full")
		}
		log.Info().Uint64("dropped", p.Dropped()).Msg("peer disconnected")
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, p *peer) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-p.out:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				p.close()
				cancel()
				return
			}
		}
	}
}

// handshake reads HELLO and replies WELCOME. It returns nil when the peer
// must be dropped.
func (s *Server) handshake(conn *websocket.Conn) (*peer, string) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, ""
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.closeWith(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil, ""
	}
	if base.ProtocolVersion != protocol.Version {
		s.closeWith(conn, protocol.ErrProtoVersion, "unsupported protocolVersion "+base.ProtocolVersion)
		return nil, ""
	}
	if err := s.cfg.Validator.Validate(protocol.TypeHello, msg); err != nil {
		s.closeWith(conn, protocol.ErrProtoBadRequest, err.Error())
		return nil, ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, ""
	}

	p := newPeer(s.newID(), s.cfg.OutQueue)
	if err := s.writeJSON(conn, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PeerID:          p.id,
		TickRateHz:      s.cfg.TickRateHz,
		BroadcastEvery:  s.cfg.BroadcastEveryTicks,
	}); err != nil {
		return nil, ""
	}
	return p, strings.TrimSpace(hello.Name)
}

// route validates one inbound message and hands it to the lobby. It returns
// false when the connection should end.
func (s *Server) route(ctx context.Context, p *peer, name string, msg []byte) bool {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.reject(p, protocol.ErrProtoBadRequest, "malformed json")
		return true
	}
	if err := s.cfg.Validator.Validate(base.Type, msg); err != nil {
		code := protocol.ErrProtoBadRequest
		if errors.Is(err, protocol.ErrUnknownType) {
			code = protocol.ErrBadRequest
		}
		s.reject(p, code, err.Error())
		return true
	}

	switch base.Type {
	case protocol.TypeHello:
		s.reject(p, protocol.ErrProtoBadRequest, "already greeted")
	case protocol.TypeJoin:
		var m protocol.JoinMsg
		_ = json.Unmarshal(msg, &m)
		return s.submitJoin(ctx, lobby.JoinRequest{Peer: p, Name: name, SessionID: m.SessionID, GameMode: m.GameMode, Map: m.Map})
	case protocol.TypeReady:
		var m protocol.ReadyMsg
		_ = json.Unmarshal(msg, &m)
		return s.submit(ctx, lobby.ReadyRequest{PeerID: p.id, Ready: m.Ready})
	case protocol.TypeForceStart:
		return s.submit(ctx, lobby.ForceStartRequest{PeerID: p.id})
	case protocol.TypeLeave:
		select {
		case s.cfg.Lobby.Leave() <- p.id:
		case <-ctx.Done():
			return false
		}
	case protocol.TypeCommand:
		var m protocol.CommandMsg
		_ = json.Unmarshal(msg, &m)
		return s.submit(ctx, lobby.CommandRequest{PeerID: p.id, RequestID: m.RequestID, CommandText: m.CommandText, UnitIDs: m.UnitIDs})
	case protocol.TypeSpawn:
		var m protocol.SpawnMsg
		_ = json.Unmarshal(msg, &m)
		return s.submit(ctx, lobby.SpawnRequest{PeerID: p.id, Archetype: m.Archetype})
	}
	return true
}

func (s *Server) submitJoin(ctx context.Context, req lobby.JoinRequest) bool {
	select {
	case s.cfg.Lobby.Join() <- req:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) submit(ctx context.Context, req lobby.Request) bool {
	select {
	case s.cfg.Lobby.Inbox() <- req:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) reject(p *peer, code, message string) {
	b, err := json.Marshal(protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Message: message})
	if err != nil {
		return
	}
	_ = p.Send(b)
}

func (s *Server) closeWith(conn *websocket.Conn, code, message string) {
	_ = s.writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Message: message})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
