package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"increname/buffer"
	"increname/provider/nvimlsp"
	"increname/provider/stdio"
)

func TestNewProvider(t *testing.T) {
	nv := buffer.New(buffer.Config{CommandName: "IncRename"})
	gopls := stdio.Config{Command: []string{"gopls"}}

	tests := []struct {
		name    string
		typ     Type
		opts    Options
		want    any
		wantErr bool
	}{
		{"nvim", TypeNvim, Options{Nvim: nv}, &nvimlsp.Provider{}, false},
		{"stdio", TypeStdio, Options{Stdio: gopls}, &stdio.Provider{}, false},
		{"default with neovim", "", Options{Nvim: nv, Stdio: gopls}, &nvimlsp.Provider{}, false},
		{"default without neovim", "", Options{Stdio: gopls}, &stdio.Provider{}, false},
		{"nvim without connection", TypeNvim, Options{}, nil, true},
		{"stdio without command", TypeStdio, Options{}, nil, true},
		{"unknown", "bogus", Options{Nvim: nv}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(context.Background(), tt.typ, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}

func TestStdioProviderIsCloser(t *testing.T) {
	p, err := NewProvider(context.Background(), TypeStdio, Options{Stdio: stdio.Config{Command: []string{"gopls"}}})
	require.NoError(t, err)

	closer, ok := p.(Closer)
	require.True(t, ok)
	assert.NoError(t, closer.Close(context.Background()))
}
