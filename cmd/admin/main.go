package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "sessions":
			getCmd("sessions", "/admin/v1/sessions", os.Args[2:])
			return
		case "matches":
			getCmd("matches", "/admin/v1/matches", os.Args[2:])
			return
		case "logs":
			logsCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <db|sessions|matches|logs> [flags]")
	os.Exit(2)
}
