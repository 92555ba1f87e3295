package main

import (
	"context"
	"encoding/json"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"skirmish.ai/internal/persistence/indexdb"
	persistlog "skirmish.ai/internal/persistence/log"
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/lobby"
	"skirmish.ai/internal/sim/maps"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/telemetry"
	"skirmish.ai/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		mapsDir     = flag.String("maps", "", "map directory (default: <configs>/maps)")
		disableDB   = flag.Bool("disable_db", false, "disable the match result index")
		disableLogs = flag.Bool("disable_event_logs", false, "disable per-match event logs")
		planTimeout = flag.Duration("plan_timeout", 10*time.Second, "upper bound on one command plan")
		logLevel    = flag.String("log_level", "info", "log level (debug, info, warn, error)")
		logJSON     = flag.Bool("log_json", envBool("SKIRMISH_LOG_JSON", false), "log as JSON instead of console text")
	)
	flag.Parse()

	logger := newLogger(*logLevel, *logJSON)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal().Err(err).Msg("load tuning")
		}
		logger.Warn().Str("path", tp).Msg("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	md := strings.TrimSpace(*mapsDir)
	if md == "" {
		md = filepath.Join(*configDir, "maps")
	}

	idx, err := openMatchIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open match index")
	}
	if idx != nil {
		defer idx.Close()
	}

	meters := telemetry.NewProvider()
	meters.SetGlobal()
	defer func() { _ = meters.Shutdown(context.Background()) }()
	tel, err := telemetry.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry")
	}

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatal().Err(err).Msg("compile schemas")
	}

	cfg := lobby.Config{
		Tuning:      tune,
		Maps:        maps.FileLoader{Dir: md},
		PlanTimeout: *planTimeout,
		Telemetry:   tel,
		Log:         logger,
	}
	if idx != nil {
		cfg.Index = idx
	}
	if !*disableLogs {
		dir := *dataDir
		cfg.OpenEventLog = func(sessionID string) (lobby.EventLog, error) {
			return persistlog.NewMatchLogger(dir, sessionID), nil
		}
	}
	lob := lobby.New(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := lob.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("lobby stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		var st *indexdb.Stats
		if idx != nil {
			s := idx.Stats()
			st = &s
		}
		writeMetrics(rw, lob.Metrics(), st)
		if err := meters.WritePrometheus(r.Context(), rw); err != nil {
			logger.Warn().Err(err).Msg("collect otel metrics")
		}
	})

	if envBool("SKIRMISH_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/sessions", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(lob.Metrics())
		}))
		mux.HandleFunc("/admin/v1/matches", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			if idx == nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": "index disabled"})
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			recs, err := idx.RecentMatches(ctx2, envInt("SKIRMISH_ADMIN_MATCH_LIMIT", 50))
			if err != nil {
				rw.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "matches": recs})
		}))
	} else {
		logger.Info().Msg("admin endpoints disabled (SKIRMISH_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("SKIRMISH_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	mux.HandleFunc("/v1/ws", ws.NewServer(ws.Config{
		Lobby:               lob,
		Validator:           validator,
		Log:                 logger,
		TickRateHz:          tune.TickRateHz,
		BroadcastEveryTicks: tune.BroadcastEveryTicks,
		MessagesPerSecond:   tune.RateLimits.MessagesPerSecond,
		Burst:               tune.RateLimits.Burst,
		OutQueue:            envInt("SKIRMISH_PEER_QUEUE", 32),
	}).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", *addr).Int("tick_rate_hz", tune.TickRateHz).Str("maps", md).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("ListenAndServe")
	}
}

func newLogger(level string, asJSON bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if asJSON {
		l = zerolog.New(os.Stdout)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"})
	}
	return l.Level(lvl).With().Timestamp().Str("service", "skirmish").Logger()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
