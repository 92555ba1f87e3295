// Command bot is a headless client: it joins a session, readies up, issues
// commands from a script, and logs what the server reports.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"skirmish.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		mode     = flag.String("mode", "versus", "game mode (versus, solo)")
		mapName  = flag.String("map", "", "map name (server default when empty)")
		session  = flag.String("session", "", "session id to join (optional)")
		script   = flag.String("commands", "attack;capture the nearest point;defend", "semicolon-separated commands, one per interval")
		interval = flag.Duration("interval", 20*time.Second, "time between scripted commands")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}).With().Timestamp().Str("bot", *name).Logger()
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial")
	}
	defer conn.Close()

	b := &bot{
		write:    conn.WriteJSON,
		log:      logger,
		commands: splitScript(*script),
		interval: *interval,
	}
	if err := b.write(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Name: *name}); err != nil {
		logger.Fatal().Err(err).Msg("send HELLO")
	}
	b.join = protocol.JoinMsg{Type: protocol.TypeJoin, SessionID: *session, GameMode: *mode, Map: *mapName}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteJSON(map[string]string{"type": protocol.TypeLeave})
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if done := b.handle(msg, time.Now()); done {
			return
		}
	}
}

type bot struct {
	write func(v any) error
	log   zerolog.Logger
	join  protocol.JoinMsg

	commands []string
	next     int
	interval time.Duration
	lastSent time.Time
	started  bool
	seq      int
}

func splitScript(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ";") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// handle reacts to one server message. It returns true when the bot is done.
func (b *bot) handle(msg []byte, now time.Time) bool {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return false
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if json.Unmarshal(msg, &w) == nil {
			b.log.Info().Str("peer", w.PeerID).Int("tick_rate", w.TickRateHz).Msg("WELCOME")
		}
		b.send(b.join)
	case protocol.TypeJoinResult:
		var r protocol.JoinResultMsg
		if json.Unmarshal(msg, &r) != nil {
			return false
		}
		if !r.Success {
			b.log.Error().Str("code", r.Code).Msg(r.Summary)
			return true
		}
		b.log.Info().Str("session", r.SessionID).Int("team", r.PlayerTeam).Msg("joined")
		b.send(protocol.ReadyMsg{Type: protocol.TypeReady, Ready: true})
	case protocol.TypeMatchStarted:
		b.started = true
		b.log.Info().Msg("match started")
		b.maybeCommand(now)
	case protocol.TypeState:
		if b.started {
			b.maybeCommand(now)
		}
	case protocol.TypeCommandFeedback:
		var fb protocol.CommandFeedbackMsg
		if json.Unmarshal(msg, &fb) == nil {
			b.log.Info().Str("status", fb.StatusTag).Bool("ok", fb.Success).Int("units", len(fb.UnitIDs)).Msg(fb.Summary)
		}
	case protocol.TypeMatchEnded:
		var e protocol.MatchEndedMsg
		if json.Unmarshal(msg, &e) == nil {
			b.log.Info().Int("winner", e.WinningTeam).Str("victory", e.VictoryType).Float64("duration_s", e.DurationSeconds).Msg("match ended")
		}
		return true
	case protocol.TypeError:
		var e protocol.ErrorMsg
		if json.Unmarshal(msg, &e) == nil {
			b.log.Warn().Str("code", e.Code).Msg(e.Message)
		}
	}
	return false
}

func (b *bot) maybeCommand(now time.Time) {
	if len(b.commands) == 0 || (!b.lastSent.IsZero() && now.Sub(b.lastSent) < b.interval) {
		return
	}
	text := b.commands[b.next%len(b.commands)]
	b.next++
	b.seq++
	b.lastSent = now
	b.send(protocol.CommandMsg{
		Type:        protocol.TypeCommand,
		RequestID:   "bot-" + strconv.Itoa(b.seq),
		CommandText: text,
		UnitIDs:     []string{},
	})
}

func (b *bot) send(v any) {
	if err := b.write(v); err != nil {
		b.log.Warn().Err(err).Msg("send")
	}
}
