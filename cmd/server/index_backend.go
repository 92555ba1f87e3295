package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"skirmish.ai/internal/persistence/indexdb"
	"skirmish.ai/internal/sim/lobby"
)

type matchIndex interface {
	lobby.ResultIndex
	Close() error
	Stats() indexdb.Stats
	RecentMatches(ctx context.Context, limit int) ([]indexdb.MatchRecord, error)
}

func openMatchIndex(dataDir string, disableDB bool, log zerolog.Logger) (matchIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SKIRMISH_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "matches.sqlite"), log)
	default:
		return nil, fmt.Errorf("unsupported SKIRMISH_INDEX_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
