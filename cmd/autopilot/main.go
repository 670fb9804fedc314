// cmd/autopilot/main.go
//
// Entry point for the autopilot CLI. Ctrl+C or SIGTERM cancels the context,
// which stops the monitor loop at its next sleep.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata" // schedule timezones on hosts without zoneinfo

	"github.com/kingrea/lattice-autopilot/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}
