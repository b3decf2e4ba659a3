// Command nommied runs the authoritative Nommie game server: sqlite-backed
// state, rule enforcement, deterministic AI opponents and the snapshot/ETag
// HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/decred/slog"

	"github.com/robpatriot/nommie-server/pkg/server"
	"github.com/robpatriot/nommie-server/pkg/server/db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nommied: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := server.ConfigFromEnv()
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database file (created if missing)")
	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "Address to listen on")
	flag.StringVar(&cfg.DebugLevel, "debuglevel", cfg.DebugLevel, "Logging level: trace, debug, info, warn, error")
	flag.Parse()

	logBackend := slog.NewBackend(os.Stdout)
	log := logBackend.Logger("MAIN")
	if level, ok := slog.LevelFromString(cfg.DebugLevel); ok {
		log.SetLevel(level)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	// Migrations run under the cross-process lock; failure aborts bootstrap.
	ctx := context.Background()
	lock, err := db.AcquireMigrateLock(ctx, database.Path(), cfg.MigrateTimeout)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	migrateErr := database.Migrate(ctx)
	if releaseErr := lock.Release(); releaseErr != nil {
		log.Warnf("failed to release migration lock: %v", releaseErr)
	}
	if migrateErr != nil {
		return fmt.Errorf("migration failed: %w", migrateErr)
	}

	srv, err := server.New(database, logBackend, cfg)
	if err != nil {
		return err
	}
	defer srv.Shutdown()

	log.Infof("nommied listening on %s (db %s)", cfg.Listen, cfg.DBPath)
	return http.ListenAndServe(cfg.Listen, srv.Router())
}
