package render

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"increname/types"
)

// plainTheme renders without escape codes since the writer is not a
// terminal.
func plainTheme() Theme {
	return NewTheme(lipgloss.NewRenderer(&bytes.Buffer{}))
}

func TestHighlight(t *testing.T) {
	marker := plainTheme().Highlight
	tests := []struct {
		name  string
		line  string
		spans []types.Span
		want  string
	}{
		{"no spans", "x = 1", nil, "x = 1"},
		{"all spans", "x = x + x", []types.Span{{Start: 0, End: 1}, {Start: 4, End: 5}, {Start: 8, End: 9}}, "x = x + x"},
		{"out of range span skipped", "abc", []types.Span{{Start: 1, End: 9}}, "abc"},
		{"overlapping span skipped", "abcdef", []types.Span{{Start: 0, End: 3}, {Start: 2, End: 4}}, "abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.line, tt.spans, marker))
		})
	}
}

func TestPreview(t *testing.T) {
	r := &types.RenderResult{
		Name: "total",
		Lines: []types.LineRender{
			{DocumentID: "file:///w/b.go", Line: 11, Original: "use(sum)", Text: "use(total)", Highlights: []types.Span{{Start: 4, End: 9}}},
			{DocumentID: "file:///w/a.go", Line: 2, Original: "sum := sum + 1", Text: "total := total + 1", Highlights: []types.Span{{Start: 0, End: 5}, {Start: 9, End: 14}}},
		},
	}

	out := Preview(r, func(doc string) string { return doc[len("file:///w/"):] }, plainTheme())

	assert.Equal(t, ""+
		"a.go\n"+
		" 3 - sum := sum + 1\n"+
		" 3 + total := total + 1\n"+
		"b.go\n"+
		"12 - use(sum)\n"+
		"12 + use(total)\n"+
		"3 occurrences in 2 files\n", out)
}

func TestPreviewEmpty(t *testing.T) {
	assert.Equal(t, "no references to preview\n", Preview(nil, nil, plainTheme()))
	assert.Equal(t, "no references to preview\n", Preview(&types.RenderResult{}, nil, plainTheme()))
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "1 file", plural(1, "file"))
	assert.Equal(t, "0 files", plural(0, "file"))
	assert.Equal(t, "2 occurrences", plural(2, "occurrence"))
}
