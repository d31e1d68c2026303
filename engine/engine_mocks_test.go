package engine

import (
	"context"
	"encoding/json"
	"sync"

	"increname/index"
	"increname/types"
)

// --- Mock implementations ---

// mockProvider implements the Provider interface for testing
type mockProvider struct {
	mu   sync.Mutex
	refs *types.References
	err  error

	// blockFirst, when set, holds the first FindReferences call until closed,
	// regardless of context cancellation.
	blockFirst chan struct{}
	// blockCtx, when set, holds FindReferences until closed or canceled.
	blockCtx chan struct{}
	// firstRefs is returned by the first call instead of refs when set.
	firstRefs *types.References

	renameResult *types.RenameResult
	renameErr    error
	// renameRelease, when set, holds Rename until closed or canceled.
	renameRelease chan struct{}
	// renameStarted receives once per Rename call when set.
	renameStarted chan struct{}

	findCalls    int
	renameCalls  int
	renameTarget types.Target
	renameName   string
}

func (p *mockProvider) FindReferences(ctx context.Context, target types.Target) (*types.References, error) {
	p.mu.Lock()
	p.findCalls++
	call := p.findCalls
	refs, err := p.refs, p.err
	blockFirst, blockCtx := p.blockFirst, p.blockCtx
	if call == 1 && p.firstRefs != nil {
		refs = p.firstRefs
	}
	p.mu.Unlock()

	if call == 1 && blockFirst != nil {
		<-blockFirst
	}
	if blockCtx != nil {
		select {
		case <-blockCtx:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return refs, err
}

func (p *mockProvider) Rename(ctx context.Context, target types.Target, newName string) (*types.RenameResult, error) {
	p.mu.Lock()
	p.renameCalls++
	p.renameTarget = target
	p.renameName = newName
	result, err := p.renameResult, p.renameErr
	release, started := p.renameRelease, p.renameStarted
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result, err
}

func (p *mockProvider) calls() (find, rename int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findCalls, p.renameCalls
}

type notification struct {
	msg   string
	level types.NotifyLevel
}

// mockHost implements the Host interface for testing
type mockHost struct {
	mu       sync.Mutex
	source   index.Snapshot
	readErr  error
	applyErr error

	applied       []json.RawMessage
	appliedEnc    string
	notifications []notification
	refreshes     int
}

func newMockHost() *mockHost {
	return &mockHost{source: index.Snapshot{}}
}

func (h *mockHost) ReadLines(ctx context.Context, locations []types.Location) (index.Source, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.readErr != nil {
		return nil, h.readErr
	}
	return h.source, nil
}

func (h *mockHost) ApplyWorkspaceEdit(raw json.RawMessage, encoding string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.applyErr != nil {
		return h.applyErr
	}
	h.applied = append(h.applied, raw)
	h.appliedEnc = encoding
	return nil
}

func (h *mockHost) Notify(msg string, level types.NotifyLevel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifications = append(h.notifications, notification{msg: msg, level: level})
}

func (h *mockHost) RefreshPreview() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshes++
}

func (h *mockHost) refreshCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refreshes
}

func (h *mockHost) notified() []notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]notification(nil), h.notifications...)
}

func (h *mockHost) appliedEdits() []json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]json.RawMessage(nil), h.applied...)
}
