package buffer

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/neovim/go-client/nvim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"increname/types"
)

func TestLineRequests(t *testing.T) {
	locs := []types.Location{
		{DocumentID: "file:///b.go", StartLine: 3, EndLine: 3, StartCol: 0, EndCol: 3},
		{DocumentID: "file:///a.go", StartLine: 7, EndLine: 7, StartCol: 4, EndCol: 7},
		{DocumentID: "file:///a.go", StartLine: 7, EndLine: 7, StartCol: 10, EndCol: 13},
		{DocumentID: "file:///a.go", StartLine: 1, EndLine: 1, StartCol: 0, EndCol: 3},
		{DocumentID: "file:///a.go", StartLine: 2, EndLine: 4, StartCol: 0, EndCol: 3},
	}

	reqs := lineRequests(locs)

	assert.Equal(t, []lineRequest{
		{Document: "file:///a.go", Line: 1},
		{Document: "file:///a.go", Line: 7},
		{Document: "file:///b.go", Line: 3},
	}, reqs)
}

func TestTargetArgs(t *testing.T) {
	args := targetArgs{Document: "file:///a.go", Buffer: 3, Line: 4, Col: 9, Text: "\tx := foo()"}

	assert.Equal(t, types.Target{
		DocumentID: "file:///a.go",
		Buffer:     3,
		Line:       4,
		Col:        9,
		LineText:   "\tx := foo()",
	}, args.target())
}

func TestGetNumber(t *testing.T) {
	m := map[string]any{"a": int64(3), "b": uint64(4), "c": 5, "d": 6.0, "e": "x"}

	assert.Equal(t, 3, getNumber(m, "a"))
	assert.Equal(t, 4, getNumber(m, "b"))
	assert.Equal(t, 5, getNumber(m, "c"))
	assert.Equal(t, 6, getNumber(m, "d"))
	assert.Equal(t, 0, getNumber(m, "e"))
	assert.Equal(t, 0, getNumber(m, "missing"))
	assert.Equal(t, "x", getString(m, "e"))
	assert.Equal(t, "", getString(m, "a"))
}

func TestWithoutClient(t *testing.T) {
	buf := New(Config{CommandName: "IncRename"})

	_, err := buf.ReadLines(context.Background(), nil)
	assert.Error(t, err)
	assert.Error(t, buf.ApplyWorkspaceEdit(json.RawMessage(`{}`), "utf-16"))
	assert.Error(t, buf.Setup())
	assert.Error(t, buf.RegisterHandlers(Handlers{}))
	_, err = buf.LSPClient(0, "textDocument/rename")
	assert.Error(t, err)

	// Fire-and-forget calls are no-ops.
	buf.Notify("hello", types.NotifyInfo)
	buf.RefreshPreview()
	buf.FirePostHook(json.RawMessage(`{}`))
}

// --- Integration tests against an embedded Neovim ---

func startNvim(t *testing.T) *nvim.Nvim {
	t.Helper()
	if _, err := exec.LookPath("nvim"); err != nil {
		t.Skip("nvim not installed")
	}
	n, err := nvim.NewChildProcess(nvim.ChildProcessArgs("--embed", "--headless", "--clean", "-n"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func editFile(t *testing.T, n *nvim.Nvim, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, n.Command("edit "+path))

	var uri string
	require.NoError(t, n.ExecLua(`return vim.uri_from_bufnr(0)`, &uri))
	return uri
}

func TestReadLinesFromLoadedBuffers(t *testing.T) {
	n := startNvim(t)
	uri := editFile(t, n, "foo := 1\nfoo++\nbar(foo)\n")

	buf := New(Config{CommandName: "IncRename", HlGroup: "Substitute"})
	buf.SetClient(n)

	src, err := buf.ReadLines(context.Background(), []types.Location{
		{DocumentID: uri, StartLine: 0, EndLine: 0, StartCol: 0, EndCol: 3},
		{DocumentID: uri, StartLine: 2, EndLine: 2, StartCol: 4, EndCol: 7},
		{DocumentID: "file:///not/loaded.go", StartLine: 0, EndLine: 0, StartCol: 0, EndCol: 3},
	})
	require.NoError(t, err)

	line, ok := src.Line(uri, 0)
	assert.True(t, ok)
	assert.Equal(t, "foo := 1", line)
	line, ok = src.Line(uri, 2)
	assert.True(t, ok)
	assert.Equal(t, "bar(foo)", line)
	_, ok = src.Line("file:///not/loaded.go", 0)
	assert.False(t, ok)
}

func TestApplyWorkspaceEdit(t *testing.T) {
	n := startNvim(t)
	uri := editFile(t, n, "foo := 1\nfoo++\n")

	buf := New(Config{CommandName: "IncRename"})
	buf.SetClient(n)

	raw := json.RawMessage(`{"changes":{"` + uri + `":[` +
		`{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":3}},"newText":"bar"},` +
		`{"range":{"start":{"line":1,"character":0},"end":{"line":1,"character":3}},"newText":"bar"}]}}`)
	require.NoError(t, buf.ApplyWorkspaceEdit(raw, "utf-16"))

	lines, err := n.BufferLines(0, 0, -1, true)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "bar := 1", string(lines[0]))
	assert.Equal(t, "bar++", string(lines[1]))
}

func TestApplyWorkspaceEditReportsLuaErrors(t *testing.T) {
	n := startNvim(t)

	buf := New(Config{CommandName: "IncRename"})
	buf.SetClient(n)

	err := buf.ApplyWorkspaceEdit(json.RawMessage(`not json`), "utf-16")
	assert.Error(t, err)
}

func TestSetupCreatesCommand(t *testing.T) {
	n := startNvim(t)

	buf := New(Config{CommandName: "IncRename", HlGroup: "Substitute"})
	buf.SetClient(n)
	require.NoError(t, buf.Setup())

	var exists bool
	require.NoError(t, n.ExecLua(`return vim.api.nvim_get_commands({})["IncRename"] ~= nil`, &exists))
	assert.True(t, exists)
}

func TestOtherCommandsDoNotCancel(t *testing.T) {
	n := startNvim(t)

	var mu sync.Mutex
	var events []string
	buf := New(Config{CommandName: "IncRename", HlGroup: "Substitute"})
	buf.SetClient(n)
	require.NoError(t, buf.RegisterHandlers(Handlers{
		Preview: func(types.Target, string) *types.RenderResult { return nil },
		Event: func(event string) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		},
		Commit: func(types.Target, string) {},
	}))
	require.NoError(t, buf.Setup())
	require.NoError(t, n.ExecLua(`
		vim.api.nvim_create_autocmd("CmdlineLeave", {
			callback = function() vim.g.left_cmdline = true end,
		})
	`, nil))

	_, err := n.Input(":echo 1<CR>")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var left bool
		return n.ExecLua(`return vim.g.left_cmdline == true`, &left) == nil && left
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, events)
}

func TestFirePostHook(t *testing.T) {
	n := startNvim(t)

	buf := New(Config{CommandName: "IncRename", PostHook: "IncRenamePost"})
	buf.SetClient(n)
	require.NoError(t, n.ExecLua(`
		vim.api.nvim_create_autocmd("User", {
			pattern = "IncRenamePost",
			callback = function(ev) vim.g.increname_post = ev.data.marker end,
		})
	`, nil))

	buf.FirePostHook(json.RawMessage(`{"marker":"applied"}`))

	var marker string
	require.NoError(t, n.ExecLua(`return vim.g.increname_post`, &marker))
	assert.Equal(t, "applied", marker)
}
