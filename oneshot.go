package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"increname/engine"
	"increname/metrics"
	"increname/provider"
	"increname/provider/stdio"
	"increname/render"
	"increname/types"
	"increname/utils"
	"increname/workspace"
)

type previewArgs struct {
	file string
	line int // 1-indexed
	col  int // 1-indexed byte column
	name string
}

func parsePreviewArgs(args []string) (previewArgs, error) {
	if len(args) != 4 {
		return previewArgs{}, fmt.Errorf("usage: --preview FILE LINE COL NAME")
	}
	line, err := strconv.Atoi(args[1])
	if err != nil || line < 1 {
		return previewArgs{}, fmt.Errorf("invalid line %q", args[1])
	}
	col, err := strconv.Atoi(args[2])
	if err != nil || col < 1 {
		return previewArgs{}, fmt.Errorf("invalid column %q", args[2])
	}
	return previewArgs{file: args[0], line: line, col: col, name: args[3]}, nil
}

// readTarget loads the line the rename starts on.
func readTarget(root string, a previewArgs) (types.Target, error) {
	path := a.file
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return types.Target{}, err
	}
	lines := workspace.SplitLines(string(content))
	if a.line > len(lines) {
		return types.Target{}, fmt.Errorf("%s has %d lines", path, len(lines))
	}
	text := lines[a.line-1]
	if a.col > len(text)+1 {
		return types.Target{}, fmt.Errorf("line %d of %s has %d bytes", a.line, path, len(text))
	}
	return types.Target{
		DocumentID: utils.FileURI(path),
		Line:       a.line - 1,
		Col:        a.col - 1,
		LineText:   text,
	}, nil
}

// runPreview prints the preview of one rename without writing anything.
func runPreview(argv []string) error {
	args, err := parsePreviewArgs(argv)
	if err != nil {
		return err
	}
	config := loadConfig()
	l := setupLogger(config.LogLevel)
	defer l.Close()

	target, err := readTarget(config.RootDir, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prov, err := provider.NewProvider(ctx, provider.TypeStdio, provider.Options{
		Stdio: stdio.Config{Command: config.LSPCommand, RootDir: config.RootDir},
	})
	if err != nil {
		return err
	}
	if closer, ok := prov.(provider.Closer); ok {
		defer closer.Close(context.Background())
	}

	host := workspace.New(true)
	cfg := config.engineConfig()
	cfg.ShowMessage = false
	eng := engine.NewEngine(prov, host, cfg, metrics.NewTracker())
	eng.Start(ctx)
	defer eng.Stop()

	res := eng.Preview(target, args.name)
	if res.Pending {
		select {
		case <-host.Refreshed():
			res = eng.Preview(target, args.name)
		case <-time.After(cfg.FetchTimeout + time.Second):
			return fmt.Errorf("timed out waiting for references")
		}
	}
	if res.Err != nil {
		return res.Err
	}

	pathOf := func(doc string) string { return utils.RelativePath(doc, config.RootDir) }
	fmt.Print(render.Preview(res.Render, pathOf, render.NewTheme(lipgloss.DefaultRenderer())))
	return nil
}
