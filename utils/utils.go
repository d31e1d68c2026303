package utils

import (
	"path/filepath"
	"strings"

	"go.lsp.dev/uri"
)

const fileScheme = "file://"

// FileURI returns the file URI for path, made absolute against the current
// directory first.
func FileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return string(uri.File(path))
}

// Filename returns the local path of a file URI. Other URIs are returned
// unchanged.
func Filename(documentID string) string {
	if !strings.HasPrefix(documentID, fileScheme) {
		return documentID
	}
	return uri.URI(documentID).Filename()
}

// RelativePath shows a document relative to workspace when it lives inside
// it, and as an absolute path otherwise.
func RelativePath(documentID, workspace string) string {
	path := filepath.Clean(Filename(documentID))
	if workspace == "" {
		return path
	}
	workspace = filepath.Clean(workspace)

	if relativePath, found := strings.CutPrefix(path, workspace); found && strings.HasPrefix(relativePath, string(filepath.Separator)) {
		return strings.TrimPrefix(relativePath, string(filepath.Separator))
	}
	return path
}
