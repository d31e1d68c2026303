package buffer

import (
	"fmt"

	"github.com/neovim/go-client/nvim"

	"increname/logger"
	"increname/text"
	"increname/types"
)

// Handlers receives the rename command events coming from Neovim.
type Handlers struct {
	// Preview runs on every keystroke and returns the lines to draw, nil
	// when there is nothing to show.
	Preview func(target types.Target, name string) *types.RenderResult
	// Event receives session events such as "cancel".
	Event  func(event string)
	Commit func(target types.Target, name string)
}

// targetArgs is the cursor position sent by the Lua side.
type targetArgs struct {
	Document string `msgpack:"document"`
	Buffer   int    `msgpack:"buffer"`
	Line     int    `msgpack:"line"`
	Col      int    `msgpack:"col"`
	Text     string `msgpack:"text"`
}

func (a targetArgs) target() types.Target {
	return types.Target{
		DocumentID: a.Document,
		Buffer:     a.Buffer,
		Line:       a.Line,
		Col:        a.Col,
		LineText:   a.Text,
	}
}

// RegisterHandlers registers the RPC methods the Lua side calls.
func (b *NvimBuffer) RegisterHandlers(h Handlers) error {
	if b.client == nil {
		return fmt.Errorf("nvim client not set")
	}

	err := b.client.RegisterHandler("increname_preview", func(_ *nvim.Nvim, args targetArgs, name string) (map[string]any, error) {
		return text.ToLuaFormat(h.Preview(args.target(), name)), nil
	})
	if err != nil {
		return err
	}

	err = b.client.RegisterHandler("increname_event", func(_ *nvim.Nvim, event string) {
		h.Event(event)
	})
	if err != nil {
		return err
	}

	return b.client.RegisterHandler("increname_commit", func(_ *nvim.Nvim, args targetArgs, name string) {
		h.Commit(args.target(), name)
	})
}

// setupLua creates the user command. Neovim reverts everything the preview
// callback changes once the command line is left, so the preview writes
// straight into the buffers. Only a command line that previewed a rename
// reports a cancel when it is left.
const setupLua = loadedBuffersLua + `
local chan, command, hl_group = ...
local active = false

local function target()
	local buf = vim.api.nvim_get_current_buf()
	local pos = vim.api.nvim_win_get_cursor(0)
	local text = vim.api.nvim_buf_get_lines(buf, pos[1] - 1, pos[1], false)[1] or ""
	return {
		document = vim.uri_from_bufnr(buf),
		buffer = buf,
		line = pos[1] - 1,
		col = pos[2],
		text = text,
	}
end

local function preview(opts, ns)
	active = true
	local ok, result = pcall(vim.rpcrequest, chan, "increname_preview", target(), opts.args)
	if not ok or type(result) ~= "table" or #result.lines == 0 then
		return 0
	end
	local bufs = loaded_buffers()
	for _, l in ipairs(result.lines) do
		local buf = bufs[l.document]
		if buf then
			vim.api.nvim_buf_set_lines(buf, l.line, l.line + 1, false, { l.text })
			for _, hl in ipairs(l.highlights) do
				vim.api.nvim_buf_set_extmark(buf, ns, l.line, hl[1], { end_col = hl[2], hl_group = hl_group })
			end
		end
	end
	return 2
end

vim.api.nvim_create_user_command(command, function(opts)
	active = false
	vim.rpcnotify(chan, "increname_commit", target(), opts.args)
end, { nargs = 1, preview = preview, desc = "Rename the symbol under the cursor" })

local group = vim.api.nvim_create_augroup("increname", { clear = true })
vim.api.nvim_create_autocmd("CmdlineLeave", {
	group = group,
	callback = function()
		if not active or vim.fn.getcmdtype() ~= ":" then
			return
		end
		local line = vim.fn.getcmdline()
		local ours = line:match("^%s*" .. command .. "%s") or line:match("^%s*" .. command .. "$")
		if vim.v.event.abort or not ours then
			active = false
			vim.rpcnotify(chan, "increname_event", "cancel")
		end
	end,
})
`

// Setup creates the rename command and its autocommands in Neovim.
func (b *NvimBuffer) Setup() error {
	if b.client == nil {
		return fmt.Errorf("nvim client not set")
	}

	batch := b.client.NewBatch()
	batch.ExecLua(setupLua, nil, b.client.ChannelID(), b.config.CommandName, b.config.HlGroup)
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("failed to create %s command: %w", b.config.CommandName, err)
	}
	logger.Info("registered :%s", b.config.CommandName)
	return nil
}
