/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tracker server. Handles configuration,
  dependency injection, and graceful shutdown.

COMMANDS:
  serve    Start the HTTP server (default)
  indexes  Print the index manifest the server provisions

STARTUP SEQUENCE (serve):
  1. Parse flags / TRACKER_* environment variables into config.Config
  2. Open the datastore (memory, sqlite or mongo)
  3. Provision composite indexes (built-in + optional manifest)
  4. Wire fallback observers (log, metrics, auto-provisioning)
  5. Configure HTTP router and start the server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (drain timeout)
  3. Stop the index scheduler and close the datastore

EXAMPLES:
  # SQLite file database
  ./server serve --sqlite-path ./data/tracker.db

  # MongoDB with strict index enforcement
  TRACKER_DATASTORE=mongo TRACKER_REQUIRE_INDEXES=true ./server serve

  # In-memory store seeded with demo data
  ./server serve --datastore memory --seed-scenario everything

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "tracker",
		Usage: "Productivity tracker API: expenses, habits, todos and time entries",
		Commands: []*cli.Command{
			serveCommand(),
			indexesCommand(),
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
