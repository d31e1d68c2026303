package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.lsp.dev/protocol"

	"increname/logger"
)

const (
	MethodReferences = "textDocument/references"
	MethodRename     = "textDocument/rename"
)

// Client is a minimal language server client covering what a rename needs:
// initialize, document sync, references, rename and shutdown.
type Client struct {
	transport *Transport
	cmd       *exec.Cmd

	mu           sync.Mutex
	capabilities map[string]json.RawMessage
	documents    map[protocol.DocumentURI]*document
}

// document is the server's view of an open file.
type document struct {
	version int32
	text    string
}

// Start spawns a language server and connects to its stdio.
func Start(ctx context.Context, command []string) (*Client, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("no language server command configured")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command[0], err)
	}
	logger.Info("started language server %s (pid %d)", command[0], cmd.Process.Pid)

	c := NewClient(stdout, stdin)
	c.cmd = cmd
	return c, nil
}

// NewClient wraps an existing connection.
func NewClient(r io.Reader, w io.WriteCloser) *Client {
	return &Client{
		transport: NewTransport(r, w),
		documents: make(map[protocol.DocumentURI]*document),
	}
}

// Initialize performs the initialize handshake and records the server
// capabilities.
func (c *Client) Initialize(ctx context.Context, rootURI protocol.DocumentURI) error {
	params := map[string]any{
		"processId": os.Getpid(),
		"clientInfo": map[string]any{
			"name": "increname",
		},
		"rootUri": rootURI,
		"capabilities": map[string]any{
			"general": map[string]any{
				"positionEncodings": []string{"utf-16"},
			},
			"textDocument": map[string]any{
				"references": map[string]any{},
				"rename":     map[string]any{"prepareSupport": false},
			},
			"workspace": map[string]any{
				"workspaceEdit": map[string]any{"documentChanges": true},
			},
		},
	}

	raw, err := c.transport.Call(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	var result struct {
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to decode initialize result: %w", err)
	}

	c.mu.Lock()
	c.capabilities = result.Capabilities
	c.mu.Unlock()

	return c.transport.Notify("initialized", map[string]any{})
}

// Supports reports whether the server advertised a provider for method.
func (c *Client) Supports(method string) bool {
	var key string
	switch method {
	case MethodReferences:
		key = "referencesProvider"
	case MethodRename:
		key = "renameProvider"
	default:
		return false
	}

	c.mu.Lock()
	raw, ok := c.capabilities[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	// Either a boolean or an options object.
	raw = bytes.TrimSpace(raw)
	return !isNull(raw) && string(raw) != "false"
}

// Encoding returns the negotiated position encoding.
func (c *Client) Encoding() string {
	c.mu.Lock()
	raw, ok := c.capabilities["positionEncoding"]
	c.mu.Unlock()
	var enc string
	if ok && json.Unmarshal(raw, &enc) == nil && enc != "" {
		return enc
	}
	return "utf-16"
}

// fullChange replaces the whole document. protocol.TextDocumentContentChangeEvent
// always encodes a range, which servers read as an incremental edit.
type fullChange struct {
	Text string `json:"text"`
}

type didChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []fullChange                             `json:"contentChanges"`
}

// SyncDocument makes the server's copy of uri match text. The first call
// opens the document; later calls send the full text with a bumped version
// only when it differs from what the server last saw.
func (c *Client) SyncDocument(uri protocol.DocumentURI, languageID, text string) error {
	c.mu.Lock()
	doc, open := c.documents[uri]
	if open && doc.text == text {
		c.mu.Unlock()
		return nil
	}
	if !open {
		c.documents[uri] = &document{version: 1, text: text}
		c.mu.Unlock()
		return c.transport.Notify("textDocument/didOpen", protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        uri,
				LanguageID: protocol.LanguageIdentifier(languageID),
				Version:    1,
				Text:       text,
			},
		})
	}
	doc.version++
	doc.text = text
	version := doc.version
	c.mu.Unlock()

	return c.transport.Notify("textDocument/didChange", didChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: []fullChange{{Text: text}},
	})
}

// DidClose forgets an open document. Closing an unknown URI is a no-op.
func (c *Client) DidClose(uri protocol.DocumentURI) error {
	c.mu.Lock()
	_, open := c.documents[uri]
	delete(c.documents, uri)
	c.mu.Unlock()
	if !open {
		return nil
	}
	return c.transport.Notify("textDocument/didClose", protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
}

// OpenDocuments lists the documents the server currently holds open.
func (c *Client) OpenDocuments() []protocol.DocumentURI {
	c.mu.Lock()
	defer c.mu.Unlock()
	uris := make([]protocol.DocumentURI, 0, len(c.documents))
	for uri := range c.documents {
		uris = append(uris, uri)
	}
	return uris
}

// References returns all references to the symbol at pos, declaration
// included.
func (c *Client) References(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position) ([]protocol.Location, error) {
	params := protocol.ReferenceParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
		Context: protocol.ReferenceContext{IncludeDeclaration: true},
	}

	raw, err := c.transport.Call(ctx, MethodReferences, params)
	if err != nil {
		return nil, fmt.Errorf("failed to find references: %w", err)
	}
	if isNull(raw) {
		return nil, nil
	}
	var locations []protocol.Location
	if err := json.Unmarshal(raw, &locations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal references response: %w", err)
	}
	return locations, nil
}

// Rename requests the edit renaming the symbol at pos. The raw response is
// returned alongside the decoded edit; both are nil when the server has
// nothing to rename.
func (c *Client) Rename(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, json.RawMessage, error) {
	params := protocol.RenameParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
		NewName: newName,
	}

	raw, err := c.transport.Call(ctx, MethodRename, params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rename symbol: %w", err)
	}
	if isNull(raw) {
		return nil, nil, nil
	}
	var edit protocol.WorkspaceEdit
	if err := json.Unmarshal(raw, &edit); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal rename response: %w", err)
	}
	return &edit, raw, nil
}

// Shutdown asks the server to exit and waits for the process.
func (c *Client) Shutdown(ctx context.Context) error {
	if _, err := c.transport.Call(ctx, "shutdown", nil); err != nil {
		logger.Debug("lsp shutdown: %v", err)
	}
	_ = c.transport.Notify("exit", nil)
	_ = c.transport.Close()

	if c.cmd != nil && c.cmd.Process != nil {
		select {
		case <-c.transport.Done():
		case <-ctx.Done():
			_ = c.cmd.Process.Kill()
		}
		_ = c.cmd.Wait()
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

var languageIDs = map[string]string{
	".go":   "go",
	".rs":   "rust",
	".py":   "python",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".lua":  "lua",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".java": "java",
	".rb":   "ruby",
	".zig":  "zig",
}

// LanguageID guesses the LSP language identifier from a file extension.
func LanguageID(path string) string {
	if id, ok := languageIDs[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return "plaintext"
}
