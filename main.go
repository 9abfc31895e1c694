package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"

	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/persistence"
	"github.com/wfunc/piratepanic/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	// Initialize Database
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Infof("Database driver %q ready.", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start Server
	gameServer := server.NewGameServer(cfg, db)
	runErr := gameServer.Start(ctx)
	if err := multierr.Append(runErr, db.Close()); err != nil {
		logger.Log.Errorf("Server stopped: %v", err)
		os.Exit(1)
	}
	logger.Log.Info("Server stopped.")
}
