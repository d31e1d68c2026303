package nvimlsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.lsp.dev/protocol"

	"increname/buffer"
	"increname/engine"
	"increname/index"
	"increname/logger"
	"increname/types"
)

// Compile-time check that Provider implements engine.Provider
var _ engine.Provider = (*Provider)(nil)

// Client is the part of the Neovim buffer used to talk to attached
// language servers.
type Client interface {
	LSPClient(bufnr int, method string) (*buffer.LSPClientInfo, error)
	SendLSPRequest(reqID int64, clientID, bufnr int, method string, params json.RawMessage) error
	RegisterLSPHandler(handler func(reqID int64, resultJSON string, errMsg string)) error
}

type response struct {
	result json.RawMessage
	err    error
}

// Provider answers reference and rename queries through the language
// servers attached to the buffer in Neovim.
type Provider struct {
	client Client

	reqIDCounter      int64
	mu                sync.Mutex
	pending           map[int64]chan *response
	handlerRegistered bool
}

// NewProvider creates a provider backed by client.
func NewProvider(client Client) *Provider {
	return &Provider{
		client:  client,
		pending: make(map[int64]chan *response),
	}
}

// FindReferences implements engine.Provider
func (p *Provider) FindReferences(ctx context.Context, target types.Target) (*types.References, error) {
	defer logger.Trace("nvimlsp.FindReferences")()

	raw, enc, err := p.request(ctx, target, protocol.MethodTextDocumentReferences, func(pos protocol.TextDocumentPositionParams) any {
		return protocol.ReferenceParams{
			TextDocumentPositionParams: pos,
			Context:                    protocol.ReferenceContext{IncludeDeclaration: true},
		}
	})
	if err != nil {
		return nil, err
	}

	refs := &types.References{Encoding: string(enc)}
	if isNull(raw) {
		return refs, nil
	}
	var locations []protocol.Location
	if err := json.Unmarshal(raw, &locations); err != nil {
		return nil, fmt.Errorf("nvimlsp: failed to parse references: %w", err)
	}
	for _, loc := range locations {
		refs.Locations = append(refs.Locations, types.LocationFromProtocol(loc))
	}
	logger.Debug("nvimlsp: %d references", len(refs.Locations))
	return refs, nil
}

// Rename implements engine.Provider
func (p *Provider) Rename(ctx context.Context, target types.Target, newName string) (*types.RenameResult, error) {
	defer logger.Trace("nvimlsp.Rename")()

	raw, enc, err := p.request(ctx, target, protocol.MethodTextDocumentRename, func(pos protocol.TextDocumentPositionParams) any {
		return protocol.RenameParams{
			TextDocumentPositionParams: pos,
			NewName:                    newName,
		}
	})
	if err != nil {
		return nil, err
	}

	result := &types.RenameResult{Encoding: string(enc)}
	if isNull(raw) {
		return result, nil
	}
	var edit protocol.WorkspaceEdit
	if err := json.Unmarshal(raw, &edit); err != nil {
		return nil, fmt.Errorf("nvimlsp: failed to parse workspace edit: %w", err)
	}
	result.Edit = &edit
	result.Raw = raw
	return result, nil
}

// HandleResponse is called by the RPC handler when a language server
// responds
func (p *Provider) HandleResponse(reqID int64, resultJSON string, errMsg string) {
	p.mu.Lock()
	ch, ok := p.pending[reqID]
	delete(p.pending, reqID)
	p.mu.Unlock()

	if !ok {
		logger.Debug("nvimlsp: ignoring response for unknown reqID=%d", reqID)
		return
	}

	resp := &response{result: json.RawMessage(resultJSON)}
	if errMsg != "" {
		resp.err = errors.New(errMsg)
	}
	// Buffered, and each request gets one response.
	ch <- resp
}

func (p *Provider) request(ctx context.Context, target types.Target, method string, params func(protocol.TextDocumentPositionParams) any) (json.RawMessage, index.Encoding, error) {
	info, err := p.client.LSPClient(target.Buffer, method)
	if err != nil {
		return nil, "", fmt.Errorf("nvimlsp: %w", err)
	}
	if info == nil {
		return nil, "", fmt.Errorf("%w: no client supports %s", engine.ErrNoCapableProvider, method)
	}
	if err := p.ensureHandlerRegistered(); err != nil {
		return nil, "", fmt.Errorf("nvimlsp: failed to register response handler: %w", err)
	}

	enc := index.ParseEncoding(info.OffsetEncoding)
	pos := protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(target.DocumentID)},
		Position: protocol.Position{
			Line:      uint32(target.Line),
			Character: uint32(index.CharacterColumn(target.LineText, target.Col, enc)),
		},
	}
	body, err := json.Marshal(params(pos))
	if err != nil {
		return nil, "", fmt.Errorf("nvimlsp: failed to encode %s params: %w", method, err)
	}

	reqID := atomic.AddInt64(&p.reqIDCounter, 1)
	ch := make(chan *response, 1)
	p.mu.Lock()
	p.pending[reqID] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, reqID)
		p.mu.Unlock()
	}()

	logger.Debug("nvimlsp: sending %s reqID=%d client=%s line=%d character=%d",
		method, reqID, info.Name, pos.Position.Line, pos.Position.Character)
	if err := p.client.SendLSPRequest(reqID, info.ID, target.Buffer, method, body); err != nil {
		return nil, "", fmt.Errorf("nvimlsp: failed to send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case resp := <-ch:
		if resp.err != nil {
			return nil, "", fmt.Errorf("%s: %w", info.Name, resp.err)
		}
		return resp.result, enc, nil
	}
}

func (p *Provider) ensureHandlerRegistered() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handlerRegistered {
		return nil
	}
	if err := p.client.RegisterLSPHandler(p.HandleResponse); err != nil {
		return err
	}
	p.handlerRegistered = true
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
