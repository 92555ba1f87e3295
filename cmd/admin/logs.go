package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "skirmish.ai/internal/persistence/log"
)

// logsCmd lists sessions with event logs and their files.
func logsCmd(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	session := fs.String("session", "", "session id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "matches")
	if s := strings.TrimSpace(*session); s != "" {
		files, err := persistlog.ListEventFiles(persistlog.MatchDir(*dataDir, s))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}
