package stdio

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.lsp.dev/protocol"

	"increname/client/lsp"
	"increname/engine"
	"increname/index"
	"increname/logger"
	"increname/types"
	"increname/utils"
)

// Compile-time check that Provider implements engine.Provider
var _ engine.Provider = (*Provider)(nil)

type Config struct {
	// Command starts the language server, e.g. ["gopls", "serve"].
	Command []string
	// RootDir is the workspace root sent on initialize.
	RootDir string
}

// Provider answers reference and rename queries by running a language
// server over stdio. The server is started on first use.
type Provider struct {
	config Config
	ctx    context.Context
	start  func(ctx context.Context, command []string) (*lsp.Client, error)

	mu          sync.Mutex
	client      *lsp.Client
	initialized bool
}

// NewProvider creates a provider. ctx bounds the lifetime of the server
// process.
func NewProvider(ctx context.Context, config Config) *Provider {
	return &Provider{config: config, ctx: ctx, start: lsp.Start}
}

// NewWithClient creates a provider on an already connected client.
func NewWithClient(client *lsp.Client, config Config) *Provider {
	return &Provider{config: config, ctx: context.Background(), client: client}
}

// FindReferences implements engine.Provider
func (p *Provider) FindReferences(ctx context.Context, target types.Target) (*types.References, error) {
	defer logger.Trace("stdio.FindReferences")()

	client, pos, err := p.prepare(ctx, target, lsp.MethodReferences)
	if err != nil {
		return nil, err
	}
	locations, err := client.References(ctx, protocol.DocumentURI(target.DocumentID), pos)
	if err != nil {
		return nil, err
	}

	refs := &types.References{Encoding: client.Encoding()}
	for _, loc := range locations {
		refs.Locations = append(refs.Locations, types.LocationFromProtocol(loc))
	}
	logger.Debug("stdio: %d references", len(refs.Locations))
	return refs, nil
}

// Rename implements engine.Provider
func (p *Provider) Rename(ctx context.Context, target types.Target, newName string) (*types.RenameResult, error) {
	defer logger.Trace("stdio.Rename")()

	client, pos, err := p.prepare(ctx, target, lsp.MethodRename)
	if err != nil {
		return nil, err
	}
	edit, raw, err := client.Rename(ctx, protocol.DocumentURI(target.DocumentID), pos, newName)
	if err != nil {
		return nil, err
	}
	return &types.RenameResult{Edit: edit, Raw: raw, Encoding: client.Encoding()}, nil
}

// Close shuts the language server down.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.initialized = false
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Shutdown(ctx)
}

// prepare starts and initializes the server when needed, checks it can
// serve method and brings the server's open documents up to date with disk.
func (p *Provider) prepare(ctx context.Context, target types.Target, method string) (*lsp.Client, protocol.Position, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return nil, protocol.Position{}, err
	}
	if !client.Supports(method) {
		return nil, protocol.Position{}, fmt.Errorf("%w: server does not support %s", engine.ErrNoCapableProvider, method)
	}

	p.sync(client, target.DocumentID)

	enc := index.ParseEncoding(client.Encoding())
	pos := protocol.Position{
		Line:      uint32(target.Line),
		Character: uint32(index.CharacterColumn(target.LineText, target.Col, enc)),
	}
	return client, pos, nil
}

func (p *Provider) ensureClient(ctx context.Context) (*lsp.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		if p.start == nil {
			return nil, fmt.Errorf("%w: language server closed", engine.ErrNoCapableProvider)
		}
		client, err := p.start(p.ctx, p.config.Command)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrNoCapableProvider, err)
		}
		p.client = client
	}
	if !p.initialized {
		if err := p.client.Initialize(ctx, protocol.DocumentURI(utils.FileURI(p.config.RootDir))); err != nil {
			return nil, err
		}
		p.initialized = true
	}
	return p.client, nil
}

// sync opens the target document and refreshes every document opened
// before, since a commit may have rewritten any of them on disk. Documents
// that can no longer be read are closed.
func (p *Provider) sync(client *lsp.Client, documentID string) {
	target := protocol.DocumentURI(documentID)
	uris := append(client.OpenDocuments(), target)
	seen := make(map[protocol.DocumentURI]bool, len(uris))
	for _, uri := range uris {
		if seen[uri] {
			continue
		}
		seen[uri] = true

		path := utils.Filename(string(uri))
		content, err := os.ReadFile(path)
		if err != nil {
			if uri == target {
				logger.Warn("stdio: failed to read %s: %v", path, err)
			}
			if err := client.DidClose(uri); err != nil {
				logger.Warn("stdio: close %s: %v", uri, err)
			}
			continue
		}
		if err := client.SyncDocument(uri, lsp.LanguageID(path), string(content)); err != nil {
			logger.Warn("stdio: sync %s: %v", uri, err)
		}
	}
}
