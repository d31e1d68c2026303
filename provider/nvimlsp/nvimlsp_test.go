package nvimlsp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"increname/buffer"
	"increname/engine"
	"increname/types"
)

type sentRequest struct {
	reqID    int64
	clientID int
	bufnr    int
	method   string
	params   json.RawMessage
}

// fakeClient answers requests asynchronously through the registered
// handler, like the Lua side does.
type fakeClient struct {
	mu       sync.Mutex
	info     *buffer.LSPClientInfo
	lookup   error
	sendErr  error
	result   string
	errMsg   string
	silent   bool
	handler  func(reqID int64, resultJSON string, errMsg string)
	sent     []sentRequest
	handlers int
}

func (c *fakeClient) LSPClient(bufnr int, method string) (*buffer.LSPClientInfo, error) {
	return c.info, c.lookup
}

func (c *fakeClient) SendLSPRequest(reqID int64, clientID, bufnr int, method string, params json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentRequest{reqID, clientID, bufnr, method, params})
	if !c.silent {
		handler, result, errMsg := c.handler, c.result, c.errMsg
		go handler(reqID, result, errMsg)
	}
	return nil
}

func (c *fakeClient) RegisterLSPHandler(handler func(reqID int64, resultJSON string, errMsg string)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	c.handlers++
	return nil
}

func (c *fakeClient) lastSent(t *testing.T) sentRequest {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	return c.sent[len(c.sent)-1]
}

func newTarget() types.Target {
	// "é" is two bytes in UTF-8 and one UTF-16 unit.
	return types.Target{DocumentID: "file:///a.go", Buffer: 4, Line: 2, Col: 7, LineText: "é := foo + 1"}
}

func TestFindReferences(t *testing.T) {
	client := &fakeClient{
		info:   &buffer.LSPClientInfo{ID: 9, Name: "gopls", OffsetEncoding: "utf-16"},
		result: `[{"uri":"file:///a.go","range":{"start":{"line":2,"character":5},"end":{"line":2,"character":8}}}]`,
	}
	p := NewProvider(client)

	refs, err := p.FindReferences(context.Background(), newTarget())

	require.NoError(t, err)
	assert.Equal(t, "utf-16", refs.Encoding)
	assert.Equal(t, []types.Location{
		{DocumentID: "file:///a.go", StartLine: 2, StartCol: 5, EndLine: 2, EndCol: 8},
	}, refs.Locations)

	sent := client.lastSent(t)
	assert.Equal(t, "textDocument/references", sent.method)
	assert.Equal(t, 9, sent.clientID)
	assert.Equal(t, 4, sent.bufnr)

	var params struct {
		Position struct {
			Line      int `json:"line"`
			Character int `json:"character"`
		} `json:"position"`
		Context struct {
			IncludeDeclaration bool `json:"includeDeclaration"`
		} `json:"context"`
	}
	require.NoError(t, json.Unmarshal(sent.params, &params))
	assert.Equal(t, 2, params.Position.Line)
	assert.Equal(t, 6, params.Position.Character, "byte column 7 is UTF-16 column 6")
	assert.True(t, params.Context.IncludeDeclaration)
}

func TestFindReferencesNull(t *testing.T) {
	client := &fakeClient{info: &buffer.LSPClientInfo{ID: 1, OffsetEncoding: "utf-8"}, result: "null"}
	p := NewProvider(client)

	refs, err := p.FindReferences(context.Background(), newTarget())

	require.NoError(t, err)
	assert.Empty(t, refs.Locations)
	assert.Equal(t, "utf-8", refs.Encoding)
}

func TestNoCapableClient(t *testing.T) {
	p := NewProvider(&fakeClient{})

	_, err := p.FindReferences(context.Background(), newTarget())
	assert.ErrorIs(t, err, engine.ErrNoCapableProvider)

	_, err = p.Rename(context.Background(), newTarget(), "bar")
	assert.ErrorIs(t, err, engine.ErrNoCapableProvider)
}

func TestRename(t *testing.T) {
	raw := `{"changes":{"file:///a.go":[{"range":{"start":{"line":2,"character":5},"end":{"line":2,"character":8}},"newText":"bar"}]}}`
	client := &fakeClient{info: &buffer.LSPClientInfo{ID: 1, OffsetEncoding: "utf-8"}, result: raw}
	p := NewProvider(client)

	result, err := p.Rename(context.Background(), newTarget(), "bar")

	require.NoError(t, err)
	require.NotNil(t, result.Edit)
	assert.Len(t, result.Edit.Changes, 1)
	assert.JSONEq(t, raw, string(result.Raw))
	assert.Equal(t, "utf-8", result.Encoding)

	sent := client.lastSent(t)
	assert.Equal(t, "textDocument/rename", sent.method)
	assert.Contains(t, string(sent.params), `"newName":"bar"`)
	assert.Contains(t, string(sent.params), `"character":7`)
}

func TestRenameNull(t *testing.T) {
	client := &fakeClient{info: &buffer.LSPClientInfo{ID: 1}, result: "null"}
	p := NewProvider(client)

	result, err := p.Rename(context.Background(), newTarget(), "bar")

	require.NoError(t, err)
	assert.Nil(t, result.Edit)
	assert.Nil(t, result.Raw)
}

func TestServerError(t *testing.T) {
	client := &fakeClient{info: &buffer.LSPClientInfo{ID: 1, Name: "gopls"}, errMsg: "no identifier found"}
	p := NewProvider(client)

	_, err := p.Rename(context.Background(), newTarget(), "bar")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gopls: no identifier found")
}

func TestSendError(t *testing.T) {
	client := &fakeClient{info: &buffer.LSPClientInfo{ID: 1}, sendErr: errors.New("broken pipe")}
	p := NewProvider(client)

	_, err := p.FindReferences(context.Background(), newTarget())

	assert.ErrorContains(t, err, "broken pipe")
	assert.Empty(t, p.pending)
}

func TestContextCancel(t *testing.T) {
	client := &fakeClient{info: &buffer.LSPClientInfo{ID: 1}, silent: true}
	p := NewProvider(client)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.FindReferences(ctx, newTarget())

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A late response for the abandoned request is dropped.
	p.HandleResponse(client.lastSent(t).reqID, "[]", "")
	assert.Empty(t, p.pending)
}

func TestHandlerRegisteredOnce(t *testing.T) {
	client := &fakeClient{info: &buffer.LSPClientInfo{ID: 1}, result: "[]"}
	p := NewProvider(client)

	for range 3 {
		_, err := p.FindReferences(context.Background(), newTarget())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, client.handlers)
}

func TestUnknownResponseIgnored(t *testing.T) {
	p := NewProvider(&fakeClient{})
	assert.NotPanics(t, func() { p.HandleResponse(42, "[]", "") })
}
