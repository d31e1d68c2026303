package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/neovim/go-client/nvim"

	"increname/index"
	"increname/logger"
	"increname/types"
)

type Config struct {
	CommandName string
	HlGroup     string
	// PostHook is the User autocmd pattern fired after a rename. Empty
	// disables it.
	PostHook string
}

// NvimBuffer is the Neovim side of a rename session: it reads line
// snapshots, applies workspace edits, shows messages and drives the
// command-line preview.
type NvimBuffer struct {
	client *nvim.Nvim // stored internally, set via SetClient
	config Config
}

func New(config Config) *NvimBuffer {
	return &NvimBuffer{config: config}
}

// SetClient stores the nvim client for all buffer operations
func (b *NvimBuffer) SetClient(n *nvim.Nvim) {
	b.client = n
}

func (b *NvimBuffer) Config() Config { return b.config }

// lineRequest is one line whose text the preview needs.
type lineRequest struct {
	Document string `msgpack:"document"`
	Line     int    `msgpack:"line"`
}

// lineText is a line read back from a loaded buffer.
type lineText struct {
	Document string `msgpack:"document"`
	Line     int    `msgpack:"line"`
	Text     string `msgpack:"text"`
}

// lineRequests collects the distinct single-line positions of locations in
// a stable order. Multi-line ranges are left out since they are never
// previewed.
func lineRequests(locations []types.Location) []lineRequest {
	seen := make(map[index.LineKey]bool)
	var reqs []lineRequest
	for _, loc := range locations {
		if loc.StartLine != loc.EndLine {
			continue
		}
		key := index.LineKey{DocumentID: loc.DocumentID, Line: loc.StartLine}
		if seen[key] {
			continue
		}
		seen[key] = true
		reqs = append(reqs, lineRequest{Document: loc.DocumentID, Line: loc.StartLine})
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Document != reqs[j].Document {
			return reqs[i].Document < reqs[j].Document
		}
		return reqs[i].Line < reqs[j].Line
	})
	return reqs
}

// loadedBuffersLua maps document URIs to loaded buffer numbers without
// creating buffers for files that are not open.
const loadedBuffersLua = `
local function loaded_buffers()
	local bufs = {}
	for _, buf in ipairs(vim.api.nvim_list_bufs()) do
		if vim.api.nvim_buf_is_loaded(buf) then
			bufs[vim.uri_from_bufnr(buf)] = buf
		end
	end
	return bufs
end
`

// ReadLines implements engine.Host. Lines of documents that are not loaded
// in Neovim are missing from the snapshot.
func (b *NvimBuffer) ReadLines(ctx context.Context, locations []types.Location) (index.Source, error) {
	defer logger.Trace("buffer.ReadLines")()
	if b.client == nil {
		return nil, fmt.Errorf("nvim client not set")
	}

	reqs := lineRequests(locations)
	snapshot := index.Snapshot{}
	if len(reqs) == 0 {
		return snapshot, nil
	}

	var lines []lineText
	batch := b.client.NewBatch()
	batch.ExecLua(loadedBuffersLua+`
		local reqs = ...
		local bufs = loaded_buffers()
		local out = {}
		for _, req in ipairs(reqs) do
			local buf = bufs[req.document]
			if buf then
				local text = vim.api.nvim_buf_get_lines(buf, req.line, req.line + 1, false)[1]
				if text then
					table.insert(out, { document = req.document, line = req.line, text = text })
				end
			end
		end
		return out
	`, &lines, reqs)

	if err := batch.Execute(); err != nil {
		return nil, fmt.Errorf("failed to read lines: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, l := range lines {
		snapshot.Set(l.Document, l.Line, l.Text)
	}
	logger.Debug("buffer: read %d of %d requested lines", len(lines), len(reqs))
	return snapshot, nil
}

// ApplyWorkspaceEdit implements engine.Host by handing the edit to
// vim.lsp.util.apply_workspace_edit unchanged.
func (b *NvimBuffer) ApplyWorkspaceEdit(raw json.RawMessage, encoding string) error {
	if b.client == nil {
		return fmt.Errorf("nvim client not set")
	}
	if encoding == "" {
		encoding = "utf-16"
	}

	var errMsg string
	batch := b.client.NewBatch()
	batch.ExecLua(`
		local raw, encoding = ...
		local ok, err = pcall(function()
			vim.lsp.util.apply_workspace_edit(vim.json.decode(raw), encoding)
		end)
		if ok then
			return ""
		end
		return tostring(err)
	`, &errMsg, string(raw), encoding)

	if err := batch.Execute(); err != nil {
		return fmt.Errorf("failed to apply workspace edit: %w", err)
	}
	if errMsg != "" {
		return fmt.Errorf("failed to apply workspace edit: %s", errMsg)
	}
	return nil
}

// Notify implements engine.Host.
func (b *NvimBuffer) Notify(msg string, level types.NotifyLevel) {
	b.executeLuaFunction(`
		local msg, level, title = ...
		vim.notify(msg, level, { title = title })
	`, msg, int(level), b.config.CommandName)
}

// RefreshPreview implements engine.Host. When the rename command is still
// being typed, a no-op key pair is fed so Neovim re-runs the preview.
func (b *NvimBuffer) RefreshPreview() {
	b.executeLuaFunction(`
		local command = ...
		if vim.fn.mode() ~= "c" or vim.fn.getcmdtype() ~= ":" then
			return
		end
		local line = vim.fn.getcmdline()
		if line:match("^%s*" .. command .. "%s") or line:match("^%s*" .. command .. "$") then
			local keys = vim.api.nvim_replace_termcodes(" <BS>", true, false, true)
			vim.api.nvim_feedkeys(keys, "n", false)
		end
	`, b.config.CommandName)
}

// FirePostHook triggers the configured User autocmd with the applied edit
// as its data.
func (b *NvimBuffer) FirePostHook(raw json.RawMessage) {
	if b.config.PostHook == "" || len(raw) == 0 {
		return
	}
	b.executeLuaFunction(`
		local pattern, raw = ...
		vim.api.nvim_exec_autocmds("User", { pattern = pattern, data = vim.json.decode(raw) })
	`, b.config.PostHook, string(raw))
}

// Internal helper methods

func (b *NvimBuffer) executeLuaFunction(luaCode string, args ...any) {
	if b.client == nil {
		return
	}
	batch := b.client.NewBatch()
	if len(args) > 0 {
		batch.ExecLua(luaCode, nil, args...)
	} else {
		batch.ExecLua(luaCode, nil, nil)
	}
	if err := batch.Execute(); err != nil {
		logger.Error("error executing lua function: %v", err)
	}
}
