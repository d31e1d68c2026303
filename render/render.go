package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"increname/types"
)

// Theme holds the styles of a terminal preview.
type Theme struct {
	Path      lipgloss.Style
	LineNr    lipgloss.Style
	Removed   lipgloss.Style
	Added     lipgloss.Style
	Highlight lipgloss.Style
	Summary   lipgloss.Style
}

// NewTheme builds the default theme on r. Pass lipgloss.DefaultRenderer()
// for stdout.
func NewTheme(r *lipgloss.Renderer) Theme {
	accent := lipgloss.Color("#00FFFF")
	muted := lipgloss.Color("#7D7D7D")
	added := lipgloss.Color("#00FF00")
	removed := lipgloss.Color("#FF0055")

	return Theme{
		Path:      r.NewStyle().Bold(true).Foreground(accent),
		LineNr:    r.NewStyle().Foreground(muted),
		Removed:   r.NewStyle().Foreground(removed),
		Added:     r.NewStyle().Foreground(added),
		Highlight: r.NewStyle().Reverse(true),
		Summary:   r.NewStyle().Italic(true).Foreground(muted),
	}
}

// Preview renders every line of r grouped by document, the original line
// above its renamed version with the new name highlighted.
func Preview(r *types.RenderResult, pathOf func(string) string, theme Theme) string {
	if r.Empty() {
		return theme.Summary.Render("no references to preview") + "\n"
	}
	if pathOf == nil {
		pathOf = func(s string) string { return s }
	}

	byDoc := make(map[string][]types.LineRender)
	for _, l := range r.Lines {
		byDoc[l.DocumentID] = append(byDoc[l.DocumentID], l)
	}
	docs := make([]string, 0, len(byDoc))
	for doc := range byDoc {
		docs = append(docs, doc)
	}
	sort.Strings(docs)

	width := 0
	for _, l := range r.Lines {
		width = max(width, len(fmt.Sprint(l.Line+1)))
	}

	var b strings.Builder
	for _, doc := range docs {
		b.WriteString(theme.Path.Render(pathOf(doc)))
		b.WriteByte('\n')
		for _, l := range byDoc[doc] {
			nr := theme.LineNr.Render(fmt.Sprintf("%*d", width, l.Line+1))
			fmt.Fprintf(&b, "%s %s %s\n", nr, theme.Removed.Render("-"), l.Original)
			fmt.Fprintf(&b, "%s %s %s\n", nr, theme.Added.Render("+"), Highlight(l.Text, l.Highlights, theme.Highlight))
		}
	}

	occurrences := 0
	for _, l := range r.Lines {
		occurrences += len(l.Highlights)
	}
	b.WriteString(theme.Summary.Render(plural(occurrences, "occurrence") + " in " + plural(len(docs), "file")))
	b.WriteByte('\n')
	return b.String()
}

// Highlight applies style to the spans of line. Spans are expected sorted
// and in range; others are skipped.
func Highlight(line string, spans []types.Span, style lipgloss.Style) string {
	var b strings.Builder
	pos := 0
	for _, s := range spans {
		if s.Start < pos || s.End > len(line) || s.Start > s.End {
			continue
		}
		b.WriteString(line[pos:s.Start])
		b.WriteString(style.Render(line[s.Start:s.End]))
		pos = s.End
	}
	b.WriteString(line[pos:])
	return b.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
