package mcpserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"increname/engine"
	"increname/logger"
	"increname/types"
	"increname/utils"
	"increname/workspace"
)

const (
	Name    = "increname"
	Version = "0.1.0"

	ToolPreview = "rename_preview"
	ToolCommit  = "rename_commit"
	ToolCancel  = "rename_cancel"
	ToolStats   = "rename_stats"
)

// Server exposes rename sessions as MCP tools. Previews read files from
// disk and commits write the edit back.
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
	host      *workspace.Host
	root      string

	// PendingWait bounds how long a preview waits for references.
	PendingWait time.Duration

	mu     sync.Mutex
	target *types.Target
}

// New creates the server. host must be the engine's host.
func New(eng *engine.Engine, host *workspace.Host, root string) *Server {
	s := &Server{
		mcpServer:   server.NewMCPServer(Name, Version),
		engine:      eng,
		host:        host,
		root:        root,
		PendingWait: 10 * time.Second,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(previewTool(), s.handlePreview)
	s.mcpServer.AddTool(commitTool(), s.handleCommit)
	s.mcpServer.AddTool(cancelTool(), s.handleCancel)
	s.mcpServer.AddTool(statsTool(), s.handleStats)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// Serve answers MCP requests on stdin and stdout until the client leaves.
func (s *Server) Serve() error {
	logger.Info("serving MCP tools for %s", s.root)
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve MCP server: %w", err)
	}
	return nil
}

// resolveTarget builds the target for a file position. line and column are
// 0-indexed, the column in bytes.
func (s *Server) resolveTarget(file string, line, col int) (types.Target, error) {
	path := utils.Filename(file)
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return types.Target{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	lines := workspace.SplitLines(string(content))
	if line < 0 || line >= len(lines) {
		return types.Target{}, fmt.Errorf("line %d is outside %s (%d lines)", line, path, len(lines))
	}
	text := lines[line]
	if col < 0 || col > len(text) {
		return types.Target{}, fmt.Errorf("column %d is outside line %d (%d bytes)", col, line, len(text))
	}
	return types.Target{
		DocumentID: utils.FileURI(path),
		Line:       line,
		Col:        col,
		LineText:   text,
	}, nil
}

// switchTarget remembers target as the symbol being renamed and reports
// whether it differs from the previous one.
func (s *Server) switchTarget(target types.Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.target != nil && (s.target.DocumentID != target.DocumentID || s.target.Line != target.Line || s.target.Col != target.Col)
	s.target = &target
	return changed
}

func (s *Server) clearTarget() (types.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return types.Target{}, false
	}
	t := *s.target
	s.target = nil
	return t, true
}

// preview runs one preview, waiting up to PendingWait for references when
// the session has just started.
func (s *Server) preview(ctx context.Context, target types.Target, name string) engine.PreviewResult {
	// Drop a refresh left over from an earlier session.
	select {
	case <-s.host.Refreshed():
	default:
	}

	res := s.engine.Preview(target, name)
	if !res.Pending {
		return res
	}

	timer := time.NewTimer(s.PendingWait)
	defer timer.Stop()
	select {
	case <-s.host.Refreshed():
		return s.engine.Preview(target, name)
	case <-timer.C:
	case <-ctx.Done():
	}
	return res
}
