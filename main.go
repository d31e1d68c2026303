package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"increname/buffer"
	"increname/engine"
	"increname/logger"
)

type Config struct {
	CommandName            string   `json:"command_name"`
	HlGroup                string   `json:"hl_group"`
	PreviewEmptyName       bool     `json:"preview_empty_name"`
	ShowMessage            *bool    `json:"show_message"`
	PostHook               string   `json:"post_hook"` // User autocmd pattern
	Provider               string   `json:"provider"`  // nvim or stdio
	LSPCommand             []string `json:"lsp_command"`
	RootDir                string   `json:"root_dir"`
	FetchTimeout           int      `json:"fetch_timeout"`  // in milliseconds
	RenameTimeout          int      `json:"rename_timeout"` // in milliseconds
	LogLevel               string   `json:"log_level"`      // trace, debug, info, warn, error
	DebugImmediateShutdown bool     `json:"debug_immediate_shutdown"`
}

// Normalize fills unset fields with their defaults.
func (c *Config) Normalize() {
	if c.CommandName == "" {
		c.CommandName = "IncRename"
	}
	if c.HlGroup == "" {
		c.HlGroup = "Substitute"
	}
	if c.ShowMessage == nil {
		show := true
		c.ShowMessage = &show
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5000
	}
	if c.RenameTimeout <= 0 {
		c.RenameTimeout = 5000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RootDir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.RootDir = wd
		}
	}
}

func (c Config) engineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.PreviewEmptyName = c.PreviewEmptyName
	cfg.ShowMessage = c.ShowMessage == nil || *c.ShowMessage
	cfg.FetchTimeout = time.Duration(c.FetchTimeout) * time.Millisecond
	cfg.RenameTimeout = time.Duration(c.RenameTimeout) * time.Millisecond
	return cfg
}

func (c Config) bufferConfig() buffer.Config {
	return buffer.Config{
		CommandName: c.CommandName,
		HlGroup:     c.HlGroup,
		PostHook:    c.PostHook,
	}
}

// parseConfig decodes the JSON config. An empty string yields the defaults.
func parseConfig(raw string) (Config, error) {
	var config Config
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &config); err != nil {
			return Config{}, fmt.Errorf("invalid config: %w", err)
		}
	}
	config.Normalize()
	return config, nil
}

type ServerMode string

const (
	ModeDaemon  ServerMode = "daemon"
	ModeClient  ServerMode = "client"
	ModeMCP     ServerMode = "mcp"
	ModePreview ServerMode = "preview"
)

func execDir() string {
	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("error getting executable path: %v", err)
	}
	return filepath.Dir(execPath)
}

// Setup logger to log to a file in the same directory as the executable
// Caller must defer logger.Close()
func setupLogger(logLevel string) *logger.LimitedLogger {
	f, err := os.OpenFile(filepath.Join(execDir(), "increname.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}

	limitedLogger := logger.NewLimitedLogger(f, logger.ParseLogLevel(logLevel))
	log.SetOutput(limitedLogger)
	return limitedLogger
}

func getSocketPath() string {
	return filepath.Join(execDir(), "increname.sock")
}

func getPidPath() string {
	return filepath.Join(execDir(), "increname.pid")
}

func getStatsPath() string {
	return filepath.Join(execDir(), "increname.stats.json")
}

func isDaemonRunning() (bool, int) {
	data, err := os.ReadFile(getPidPath())
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// On Unix, Signal(0) checks if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil, pid
}

func loadConfig() Config {
	config, err := parseConfig(os.Getenv("INCRENAME_CONFIG"))
	if err != nil {
		log.Fatalf("%v", err)
	}
	return config
}

func runDaemon() {
	config := loadConfig()

	l := setupLogger(config.LogLevel)
	defer l.Close()
	logger.Info("config: %+v", config)

	daemon := NewDaemon(config)
	if err := daemon.Start(); err != nil {
		logger.Fatal("error starting daemon: %v", err)
	}
}

func runClient() {
	client := NewClient()

	if err := client.EnsureDaemonRunning(); err != nil {
		log.Fatalf("error ensuring daemon is running: %v", err)
	}

	if err := client.Connect(); err != nil {
		log.Fatalf("error connecting to daemon: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [--daemon | --mcp | --preview FILE LINE COL NAME]\n", filepath.Base(os.Args[0]))
	os.Exit(2)
}

func main() {
	var mode ServerMode = ModeClient

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--daemon":
			mode = ModeDaemon
		case "--mcp":
			mode = ModeMCP
		case "--preview":
			mode = ModePreview
		default:
			usage()
		}
	}

	switch mode {
	case ModeDaemon:
		runDaemon()
	case ModeClient:
		runClient()
	case ModeMCP:
		runMCP()
	case ModePreview:
		if err := runPreview(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}
