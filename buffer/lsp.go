package buffer

import (
	"encoding/json"
	"fmt"

	"github.com/neovim/go-client/nvim"
)

// LSPClientInfo describes a language server attached to a buffer.
type LSPClientInfo struct {
	ID             int
	Name           string
	OffsetEncoding string
}

// lspClientLookupLua finds the first client attached to buf that supports
// method.
const lspClientLookupLua = `
local function find_client(buf, method)
	for _, client in ipairs(vim.lsp.get_clients({ bufnr = buf })) do
		if client:supports_method(method, buf) then
			return client
		end
	end
	return nil
end
`

// LSPClient returns the client attached to bufnr that supports method, or
// nil when there is none.
func (b *NvimBuffer) LSPClient(bufnr int, method string) (*LSPClientInfo, error) {
	if b.client == nil {
		return nil, fmt.Errorf("nvim client not set")
	}

	var result []map[string]any
	batch := b.client.NewBatch()
	batch.ExecLua(lspClientLookupLua+`
		local buf, method = ...
		local client = find_client(buf, method)
		if not client then
			return {}
		end
		return {{ id = client.id, name = client.name, offset_encoding = client.offset_encoding or "utf-16" }}
	`, &result, bufnr, method)

	if err := batch.Execute(); err != nil {
		return nil, fmt.Errorf("failed to look up language server: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	return &LSPClientInfo{
		ID:             getNumber(result[0], "id"),
		Name:           getString(result[0], "name"),
		OffsetEncoding: getString(result[0], "offset_encoding"),
	}, nil
}

// SendLSPRequest sends method to the client and delivers the response via
// the handler registered with RegisterLSPHandler.
func (b *NvimBuffer) SendLSPRequest(reqID int64, clientID, bufnr int, method string, params json.RawMessage) error {
	if b.client == nil {
		return fmt.Errorf("nvim client not set")
	}

	// Get the channel ID for RPC communication back to Go
	chanID := b.client.ChannelID()

	batch := b.client.NewBatch()
	batch.ExecLua(`
		local chanID, reqID, clientID, buf, method, params = ...
		local client = vim.lsp.get_client_by_id(clientID)
		if not client then
			vim.fn.rpcnotify(chanID, "increname_lsp_response", reqID, "null", "language server detached")
			return
		end
		client:request(method, vim.json.decode(params), function(err, result)
			local result_json = "null"
			local err_msg = ""
			if err then
				err_msg = err.message or vim.inspect(err)
			elseif result ~= nil and result ~= vim.NIL then
				result_json = vim.json.encode(result)
			end
			vim.fn.rpcnotify(chanID, "increname_lsp_response", reqID, result_json, err_msg)
		end, buf)
	`, nil, chanID, reqID, clientID, bufnr, method, string(params))

	return batch.Execute()
}

// RegisterLSPHandler registers the handler receiving language server
// responses.
func (b *NvimBuffer) RegisterLSPHandler(handler func(reqID int64, resultJSON string, errMsg string)) error {
	if b.client == nil {
		return fmt.Errorf("nvim client not set")
	}
	return b.client.RegisterHandler("increname_lsp_response", func(_ *nvim.Nvim, reqID int64, resultJSON string, errMsg string) {
		handler(reqID, resultJSON, errMsg)
	})
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getNumber(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
