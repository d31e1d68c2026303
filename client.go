package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"increname/logger"
)

// Client relays the stdio RPC channel Neovim opened with jobstart to the
// shared daemon socket, starting the daemon on first use.
type Client struct {
	socketPath string
	startWait  time.Duration
}

func NewClient() *Client {
	return &Client{
		socketPath: getSocketPath(),
		startWait:  5 * time.Second,
	}
}

func (c *Client) Connect() error {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	return relay(conn, os.Stdin, os.Stdout)
}

// relay copies in to conn and conn to out until conn stops producing.
func relay(conn net.Conn, in io.Reader, out io.Writer) error {
	go func() {
		io.Copy(conn, in)
		conn.Close()
	}()

	_, err := io.Copy(out, conn)
	if err != nil && !isClosedConnError(err) {
		return err
	}
	return nil
}

func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func (c *Client) EnsureDaemonRunning() error {
	running, pid := isDaemonRunning()
	if running {
		logger.Debug("daemon already running with PID %d", pid)
		return nil
	}

	return c.startDaemon()
}

func (c *Client) startDaemon() error {
	logger.Debug("starting daemon...")

	// The daemon inherits INCRENAME_CONFIG through the environment.
	_, err := os.StartProcess(os.Args[0], []string{os.Args[0], "--daemon"}, &os.ProcAttr{
		Env:   os.Environ(),
		Files: []*os.File{nil, nil, nil},
	})
	if err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	return c.waitForDaemon()
}

// waitForDaemon polls for the PID file, which the daemon writes once its
// socket is listening.
func (c *Client) waitForDaemon() error {
	deadline := time.Now().Add(c.startWait)
	for time.Now().Before(deadline) {
		if running, _ := isDaemonRunning(); running {
			logger.Debug("daemon started successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon failed to start within %s", c.startWait)
}
