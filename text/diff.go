package text

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"increname/types"
)

// InlineDiff describes how newLine differs from oldLine using word-diff
// markers: removed text as [-text-] and inserted text as {+text+}.
func InlineDiff(oldLine, newLine string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldLine, newLine, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-")
			b.WriteString(d.Text)
			b.WriteString("-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+")
			b.WriteString(d.Text)
			b.WriteString("+}")
		}
	}
	return b.String()
}

// UnifiedPreview renders a preview as a unified diff with one hunk per line.
// Each hunk header carries the inline diff of its line. pathOf maps a
// document URI to the path shown in the headers.
func UnifiedPreview(r *types.RenderResult, pathOf func(string) string) string {
	if r.Empty() {
		return ""
	}
	if pathOf == nil {
		pathOf = func(s string) string { return s }
	}

	byDoc := make(map[string][]types.LineRender)
	var docs []string
	for _, l := range r.Lines {
		if _, ok := byDoc[l.DocumentID]; !ok {
			docs = append(docs, l.DocumentID)
		}
		byDoc[l.DocumentID] = append(byDoc[l.DocumentID], l)
	}
	sort.Strings(docs)

	var b strings.Builder
	for _, doc := range docs {
		path := pathOf(doc)
		fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", path, path)
		lines := byDoc[doc]
		sort.Slice(lines, func(i, j int) bool { return lines[i].Line < lines[j].Line })
		for _, l := range lines {
			fmt.Fprintf(&b, "@@ -%d +%d @@ %s\n-%s\n+%s\n", l.Line+1, l.Line+1, InlineDiff(l.Original, l.Text), l.Original, l.Text)
		}
	}
	return b.String()
}

// ToLuaFormat converts a preview into plain tables for the nvim preview
// callback. Highlights become {start, end} pairs.
func ToLuaFormat(r *types.RenderResult) map[string]any {
	lines := make([]any, 0)
	if r != nil {
		for _, l := range r.Lines {
			highlights := make([]any, 0, len(l.Highlights))
			for _, h := range l.Highlights {
				highlights = append(highlights, []any{h.Start, h.End})
			}
			lines = append(lines, map[string]any{
				"document":   l.DocumentID,
				"line":       l.Line,
				"text":       l.Text,
				"highlights": highlights,
			})
		}
	}
	name := ""
	if r != nil {
		name = r.Name
	}
	return map[string]any{
		"name":  name,
		"lines": lines,
	}
}
