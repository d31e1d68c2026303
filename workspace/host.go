package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.lsp.dev/protocol"

	"increname/engine"
	"increname/index"
	"increname/logger"
	"increname/types"
	"increname/utils"
)

// Compile-time check that Host implements engine.Host
var _ engine.Host = (*Host)(nil)

// Notification is a message the engine asked to show.
type Notification struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// Host serves rename sessions from files on disk, for hosts without an
// editor such as the MCP server and the one-shot preview.
type Host struct {
	// DryRun records edits instead of writing them.
	DryRun bool

	mu            sync.Mutex
	notifications []Notification
	applied       []json.RawMessage
	changed       []string
	refresh       chan struct{}
}

func New(dryRun bool) *Host {
	return &Host{DryRun: dryRun, refresh: make(chan struct{}, 1)}
}

// ReadLines implements engine.Host. Documents that are not local files, or
// cannot be read, are left out.
func (h *Host) ReadLines(ctx context.Context, locations []types.Location) (index.Source, error) {
	snapshot := index.Snapshot{}
	files := make(map[string][]string)

	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if loc.StartLine != loc.EndLine || !strings.HasPrefix(loc.DocumentID, "file://") {
			continue
		}
		lines, ok := files[loc.DocumentID]
		if !ok {
			content, err := os.ReadFile(utils.Filename(loc.DocumentID))
			if err != nil {
				logger.Debug("workspace: skipping %s: %v", loc.DocumentID, err)
			} else {
				lines = SplitLines(string(content))
			}
			files[loc.DocumentID] = lines
		}
		if loc.StartLine >= 0 && loc.StartLine < len(lines) {
			snapshot.Set(loc.DocumentID, loc.StartLine, lines[loc.StartLine])
		}
	}
	return snapshot, nil
}

// ApplyWorkspaceEdit implements engine.Host.
func (h *Host) ApplyWorkspaceEdit(raw json.RawMessage, encoding string) error {
	h.mu.Lock()
	h.applied = append(h.applied, raw)
	h.mu.Unlock()

	if h.DryRun {
		return nil
	}

	var edit protocol.WorkspaceEdit
	if err := json.Unmarshal(raw, &edit); err != nil {
		return fmt.Errorf("failed to decode workspace edit: %w", err)
	}
	paths, err := ApplyEdit(&edit, index.ParseEncoding(encoding))
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.changed = append(h.changed, paths...)
	h.mu.Unlock()
	logger.Info("workspace: wrote %d files", len(paths))
	return nil
}

// Notify implements engine.Host.
func (h *Host) Notify(msg string, level types.NotifyLevel) {
	h.mu.Lock()
	h.notifications = append(h.notifications, Notification{Message: msg, Level: level.String()})
	h.mu.Unlock()
	logger.Info("workspace: [%s] %s", level, msg)
}

// RefreshPreview implements engine.Host by signalling Refreshed.
func (h *Host) RefreshPreview() {
	select {
	case h.refresh <- struct{}{}:
	default:
	}
}

// Refreshed receives a value once references have arrived and the preview
// can be asked for again.
func (h *Host) Refreshed() <-chan struct{} { return h.refresh }

// DrainNotifications returns and clears the messages recorded so far.
func (h *Host) DrainNotifications() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.notifications
	h.notifications = nil
	return out
}

// Applied returns the raw edits handed to ApplyWorkspaceEdit.
func (h *Host) Applied() []json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]json.RawMessage(nil), h.applied...)
}

// Changed returns the files written so far.
func (h *Host) Changed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.changed...)
}
