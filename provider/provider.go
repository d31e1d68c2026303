package provider

import (
	"context"
	"fmt"

	"increname/engine"
	"increname/provider/nvimlsp"
	"increname/provider/stdio"
)

// Type selects where references and renames come from.
type Type string

const (
	// TypeNvim uses the language servers attached in Neovim.
	TypeNvim Type = "nvim"
	// TypeStdio spawns a language server of its own.
	TypeStdio Type = "stdio"
)

// Options carries what each provider type needs.
type Options struct {
	// Nvim is required for TypeNvim.
	Nvim nvimlsp.Client
	// Stdio configures TypeStdio.
	Stdio stdio.Config
}

// Closer is implemented by providers holding a language server process.
type Closer interface {
	Close(ctx context.Context) error
}

// NewProvider creates the provider for providerType. An empty type picks
// TypeNvim when a Neovim client is available and TypeStdio otherwise.
func NewProvider(ctx context.Context, providerType Type, opts Options) (engine.Provider, error) {
	if providerType == "" {
		providerType = TypeStdio
		if opts.Nvim != nil {
			providerType = TypeNvim
		}
	}

	switch providerType {
	case TypeNvim:
		if opts.Nvim == nil {
			return nil, fmt.Errorf("provider %q needs a neovim connection", providerType)
		}
		return nvimlsp.NewProvider(opts.Nvim), nil
	case TypeStdio:
		if len(opts.Stdio.Command) == 0 {
			return nil, fmt.Errorf("provider %q needs lsp_command", providerType)
		}
		return stdio.NewProvider(ctx, opts.Stdio), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}
}
