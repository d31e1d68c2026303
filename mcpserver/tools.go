package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"increname/metrics"
	"increname/text"
	"increname/types"
	"increname/utils"
	"increname/workspace"
)

func previewTool() mcp.Tool {
	return mcp.NewTool(ToolPreview,
		mcp.WithDescription("Preview renaming the symbol at a position. Repeated calls on the same position reuse the references found by the first one."),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to the file, relative to the workspace root or absolute")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("Line number (0-based)")),
		mcp.WithNumber("character", mcp.Required(), mcp.Description("Byte column (0-based)")),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New name for the symbol")),
	)
}

func commitTool() mcp.Tool {
	return mcp.NewTool(ToolCommit,
		mcp.WithDescription("Rename the symbol and write the changes. Without a position the symbol of the last preview is renamed."),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New name for the symbol")),
		mcp.WithString("file_path", mcp.Description("Path to the file")),
		mcp.WithNumber("line", mcp.Description("Line number (0-based)")),
		mcp.WithNumber("character", mcp.Description("Byte column (0-based)")),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool(ToolCancel,
		mcp.WithDescription("Discard the current rename preview"),
	)
}

func statsTool() mcp.Tool {
	return mcp.NewTool(ToolStats,
		mcp.WithDescription("Report rename session statistics"),
	)
}

func (s *Server) targetFromRequest(req mcp.CallToolRequest) (types.Target, error) {
	file := mcp.ParseString(req, "file_path", "")
	if file == "" {
		return types.Target{}, fmt.Errorf("file_path parameter is required")
	}
	line := int(mcp.ParseFloat64(req, "line", 0))
	col := int(mcp.ParseFloat64(req, "character", 0))
	return s.resolveTarget(file, line, col)
}

func (s *Server) relativePath(documentID string) string {
	return utils.RelativePath(documentID, s.root)
}

func (s *Server) handlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := s.targetFromRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := mcp.ParseString(req, "new_name", "")

	if s.switchTarget(target) {
		s.engine.Cancel()
	}

	res := s.preview(ctx, target, name)
	if res.Err != nil {
		// A failed session stays failed until it is cancelled.
		s.engine.Cancel()
		s.clearTarget()
		return mcp.NewToolResultError(fmt.Sprintf("Failed to preview rename: %v", res.Err)), nil
	}
	if res.Pending {
		return mcp.NewToolResultText("References are still loading, call again to see the preview."), nil
	}
	if res.Render.Empty() {
		return mcp.NewToolResultText("Nothing to preview."), nil
	}

	diff := text.UnifiedPreview(res.Render, s.relativePath)
	occurrences := 0
	for _, l := range res.Render.Lines {
		occurrences += len(l.Highlights)
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s\nRenaming to %q changes %d occurrence(s) in %d file(s).",
		diff, res.Render.Name, occurrences, res.Render.Documents())), nil
}

type commitResponse struct {
	ChangedInstances int                      `json:"changed_instances"`
	ChangedFiles     int                      `json:"changed_files"`
	Message          string                   `json:"message,omitempty"`
	Files            []string                 `json:"files,omitempty"`
	Notifications    []workspace.Notification `json:"notifications,omitempty"`
}

func (s *Server) handleCommit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(req, "new_name", "")

	var target types.Target
	if mcp.ParseString(req, "file_path", "") != "" {
		t, err := s.targetFromRequest(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if s.switchTarget(t) {
			s.engine.Cancel()
		}
		target = t
	} else {
		t, ok := s.clearTarget()
		if !ok {
			return mcp.NewToolResultError("file_path parameter is required when no preview is active"), nil
		}
		target = t
	}
	s.clearTarget()

	before := len(s.host.Changed())
	var outcome *types.Outcome
	select {
	case outcome = <-s.engine.Commit(target, name):
	case <-ctx.Done():
		return mcp.NewToolResultError(fmt.Sprintf("Rename interrupted: %v", ctx.Err())), nil
	}

	notifications := s.host.DrainNotifications()
	if outcome.Err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to rename symbol: %v", outcome.Err)), nil
	}

	resp := commitResponse{
		ChangedInstances: outcome.ChangedInstances,
		ChangedFiles:     outcome.ChangedFiles,
		Message:          outcome.Message,
		Notifications:    notifications,
	}
	for _, path := range s.host.Changed()[before:] {
		resp.Files = append(resp.Files, s.relativePath(utils.FileURI(path)))
	}
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode commit result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, active := s.clearTarget()
	s.engine.Cancel()
	if !active {
		return mcp.NewToolResultText("No rename in progress."), nil
	}
	return mcp.NewToolResultText("Rename preview discarded."), nil
}

type statsResponse struct {
	State string `json:"state"`
	metrics.Snapshot
}

func (s *Server) handleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(statsResponse{State: s.engine.State(), Snapshot: s.engine.Stats()}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode stats: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

