package workspace

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.lsp.dev/protocol"

	"increname/index"
	"increname/utils"
)

// fileEdits collects the edits of a workspace edit per file. documentChanges
// takes precedence over the changes map when both are present.
func fileEdits(edit *protocol.WorkspaceEdit) map[string][]protocol.TextEdit {
	files := make(map[string][]protocol.TextEdit)
	if edit == nil {
		return files
	}
	if len(edit.DocumentChanges) > 0 {
		for _, change := range edit.DocumentChanges {
			path := utils.Filename(string(change.TextDocument.URI))
			files[path] = append(files[path], change.Edits...)
		}
		return files
	}
	for uri, edits := range edit.Changes {
		path := utils.Filename(string(uri))
		files[path] = append(files[path], edits...)
	}
	return files
}

// ApplyEdit writes edit to disk and returns the paths it changed. New
// contents are computed for every file before any is written, so a bad
// edit leaves all files untouched.
func ApplyEdit(edit *protocol.WorkspaceEdit, enc index.Encoding) ([]string, error) {
	type pending struct {
		path    string
		content string
		mode    os.FileMode
	}

	files := fileEdits(edit)
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var writes []pending
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		updated, err := applyTextEdits(string(content), files[path], enc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		writes = append(writes, pending{path: path, content: updated, mode: info.Mode()})
	}

	for _, w := range writes {
		if err := os.WriteFile(w.path, []byte(w.content), w.mode); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", w.path, err)
		}
	}
	return paths, nil
}

// applyTextEdits applies edits to content, last position first so earlier
// ranges stay valid.
func applyTextEdits(content string, edits []protocol.TextEdit, enc index.Encoding) (string, error) {
	lineEnding := detectLineEnding(content)
	lines := strings.Split(content, lineEnding)

	sorted := append([]protocol.TextEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Range.Start, sorted[j].Range.Start
		if a.Line != b.Line {
			return a.Line > b.Line
		}
		return a.Character > b.Character
	})

	for _, edit := range sorted {
		start, end := int(edit.Range.Start.Line), int(edit.Range.End.Line)
		if start > end || end >= len(lines) {
			return "", fmt.Errorf("edit range %d-%d outside %d lines", start, end, len(lines))
		}
		first, last := lines[start], lines[end]
		startCol := index.ByteColumn(first, int(edit.Range.Start.Character), enc)
		endCol := index.ByteColumn(last, int(edit.Range.End.Character), enc)
		if start == end && endCol < startCol {
			return "", fmt.Errorf("edit range on line %d ends before it starts", start)
		}

		merged := first[:startCol] + edit.NewText + last[endCol:]
		replacement := strings.Split(strings.ReplaceAll(merged, "\r\n", "\n"), "\n")

		updated := make([]string, 0, len(lines)-(end-start+1)+len(replacement))
		updated = append(updated, lines[:start]...)
		updated = append(updated, replacement...)
		updated = append(updated, lines[end+1:]...)
		lines = updated
	}

	return strings.Join(lines, lineEnding), nil
}

func detectLineEnding(content string) string {
	if strings.Contains(content, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// SplitLines splits file content into lines without their endings.
func SplitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
