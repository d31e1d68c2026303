package engine

import (
	"context"
	"encoding/json"
	"time"

	"go.lsp.dev/protocol"

	"increname/index"
	"increname/types"
)

// Provider answers reference and rename queries for a target symbol.
// Implemented by nvimlsp.Provider and stdio.Provider.
type Provider interface {
	// FindReferences returns every reference to the symbol at target,
	// declaration included. It returns ErrNoCapableProvider when no language
	// server can answer.
	FindReferences(ctx context.Context, target types.Target) (*types.References, error)
	// Rename asks the language server for the edit renaming the symbol at
	// target to newName.
	Rename(ctx context.Context, target types.Target, newName string) (*types.RenameResult, error)
}

// Host is the editor (or file system) the session renders into.
// Implemented by buffer.NvimBuffer and workspace.Host.
type Host interface {
	// ReadLines captures the current text of the lines the locations refer
	// to. Lines of documents that are not loaded are left out.
	ReadLines(ctx context.Context, locations []types.Location) (index.Source, error)
	// ApplyWorkspaceEdit applies an edit exactly as the server returned it.
	ApplyWorkspaceEdit(raw json.RawMessage, encoding string) error
	// Notify shows a message to the user.
	Notify(msg string, level types.NotifyLevel)
	// RefreshPreview asks the host to call Preview again, used once
	// references arrive after the first keystroke.
	RefreshPreview()
}

// Config controls session behaviour.
type Config struct {
	// PreviewEmptyName renders a preview even when the typed name is blank.
	PreviewEmptyName bool
	// ShowMessage notifies a summary after a successful rename.
	ShowMessage   bool
	FetchTimeout  time.Duration
	RenameTimeout time.Duration
	// PostCommitHook runs after a successful rename with the edit that was
	// applied.
	PostCommitHook func(edit *protocol.WorkspaceEdit, raw json.RawMessage)
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ShowMessage:   true,
		FetchTimeout:  5 * time.Second,
		RenameTimeout: 5 * time.Second,
	}
}

// PreviewResult is the answer to one keystroke.
type PreviewResult struct {
	// Render is nil when there is nothing to draw.
	Render *types.RenderResult
	// Pending is true while references are still being fetched.
	Pending bool
	// Err is the stored session error when the session has failed.
	Err error
}
