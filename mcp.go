package main

import (
	"context"
	"time"

	"increname/engine"
	"increname/logger"
	"increname/mcpserver"
	"increname/metrics"
	"increname/provider"
	"increname/provider/stdio"
	"increname/workspace"
)

// runMCP serves rename tools over stdio. Files are read from and written to
// disk under root_dir.
func runMCP() {
	config := loadConfig()

	l := setupLogger(config.LogLevel)
	defer l.Close()
	logger.Info("config: %+v", config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prov, err := provider.NewProvider(ctx, provider.TypeStdio, provider.Options{
		Stdio: stdio.Config{Command: config.LSPCommand, RootDir: config.RootDir},
	})
	if err != nil {
		logger.Fatal("error creating provider: %v", err)
	}
	if closer, ok := prov.(provider.Closer); ok {
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			if err := closer.Close(shutdownCtx); err != nil {
				logger.Warn("error closing provider: %v", err)
			}
		}()
	}

	host := workspace.New(false)
	tracker := metrics.NewTracker()
	eng := engine.NewEngine(prov, host, config.engineConfig(), tracker)
	eng.Start(ctx)
	defer eng.Stop()

	srv := mcpserver.New(eng, host, config.RootDir)
	if err := srv.Serve(); err != nil {
		logger.Error("%v", err)
	}

	snap := tracker.Snapshot()
	logger.Info("session stats: sessions=%d previews=%d commits=%d", snap.Sessions, snap.Previews, snap.Commits)
}
