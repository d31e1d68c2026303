package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/neovim/go-client/nvim"
	"go.lsp.dev/protocol"

	"increname/buffer"
	"increname/engine"
	"increname/logger"
	"increname/metrics"
	"increname/provider"
	"increname/provider/stdio"
	"increname/types"
)

type Daemon struct {
	config      Config
	tracker     *metrics.Tracker
	listener    net.Listener
	socketPath  string
	pidPath     string
	clientCount int64
	ctx         context.Context
	cancel      context.CancelFunc

	idleTimeout  time.Duration
	pollInterval time.Duration
}

func NewDaemon(config Config) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:       config,
		tracker:      metrics.NewTracker(),
		socketPath:   getSocketPath(),
		pidPath:      getPidPath(),
		ctx:          ctx,
		cancel:       cancel,
		idleTimeout:  30 * time.Second,
		pollInterval: time.Second,
	}
	// In debug mode, shut down as soon as the last client leaves.
	if config.DebugImmediateShutdown {
		d.idleTimeout = 0
	}
	return d
}

func (d *Daemon) Start() error {
	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	d.writePidFile()
	defer d.removePidFile()

	logger.Info("daemon listening on socket: %s", d.socketPath)

	d.setupShutdownHandling()

	go d.acceptConnections()
	go d.monitorIdleShutdown()

	<-d.ctx.Done()
	logger.Info("daemon shutting down...")
	d.saveStats()
	return nil
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		d.Stop()
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				logger.Error("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		logger.Info("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

// handleConnection runs one Neovim instance: its own host, provider and
// engine, all torn down when the connection closes.
func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		logger.Info("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	n, err := nvim.New(conn, conn, conn, logger.Printf)
	if err != nil {
		logger.Error("error creating nvim client: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(d.ctx)
	defer cancel()

	buf := buffer.New(d.config.bufferConfig())
	buf.SetClient(n)

	prov, err := provider.NewProvider(ctx, provider.Type(d.config.Provider), provider.Options{
		Nvim:  buf,
		Stdio: stdio.Config{Command: d.config.LSPCommand, RootDir: d.config.RootDir},
	})
	if err != nil {
		logger.Error("error creating provider: %v", err)
		return
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

	cfg := d.config.engineConfig()
	cfg.PostCommitHook = func(_ *protocol.WorkspaceEdit, raw json.RawMessage) {
		buf.FirePostHook(raw)
	}
	eng := engine.NewEngine(prov, buf, cfg, d.tracker)
	eng.Start(ctx)
	defer eng.Stop()

	err = buf.RegisterHandlers(buffer.Handlers{
		Preview: func(target types.Target, name string) *types.RenderResult {
			return eng.Preview(target, name).Render
		},
		Event: func(event string) {
			typ, ok := engine.EventTypeFromString(event)
			if !ok || typ != engine.EventCancel {
				logger.Warn("ignoring unknown event %q", event)
				return
			}
			eng.Cancel()
		},
		Commit: func(target types.Target, name string) {
			done := eng.Commit(target, name)
			go func() {
				outcome := <-done
				if outcome.Err != nil {
					logger.Debug("commit finished with error: %v", outcome.Err)
					return
				}
				logger.Debug("commit finished: %s", outcome.Message)
			}()
		},
	})
	if err != nil {
		logger.Error("error registering handlers: %v", err)
		return
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- n.Serve() }()

	if err := buf.Setup(); err != nil {
		logger.Error("error setting up neovim: %v", err)
		n.Close()
		<-serveErr
		return
	}

	select {
	case <-d.ctx.Done():
		n.Close()
		<-serveErr
	case err := <-serveErr:
		if err != nil && err != io.EOF {
			logger.Error("error serving connection: %v", err)
		}
	}
}

// monitorIdleShutdown stops the daemon once no client has been connected
// for idleTimeout.
func (d *Daemon) monitorIdleShutdown() {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		select {
		case <-d.ctx.Done():
			return
		case now := <-ticker.C:
			if atomic.LoadInt64(&d.clientCount) > 0 {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = now
			}
			if now.Sub(idleSince) >= d.idleTimeout {
				logger.Info("no clients connected for %s, shutting down daemon", d.idleTimeout)
				d.Stop()
				return
			}
		}
	}
}

func (d *Daemon) Stop() {
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

func (d *Daemon) saveStats() {
	snap := d.tracker.Snapshot()
	logger.Info("session stats: sessions=%d previews=%d commits=%d disposed=%d stale=%d errors=%v",
		snap.Sessions, snap.Previews, snap.Commits, snap.Disposed, snap.StaleResponses, snap.Errors)
	if err := d.tracker.Save(getStatsPath()); err != nil {
		logger.Warn("could not save stats: %v", err)
	}
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644)
	if err != nil {
		logger.Warn("could not write PID file: %v", err)
	}
	logger.Info("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not remove PID file: %v", err)
	}
}
