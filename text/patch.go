package text

import (
	"increname/types"
)

// Patch substitutes replacement for every occurrence in line and returns the
// patched line together with the span each replacement now occupies.
//
// Occurrences must be sorted by Start and must not overlap. Each span is
// shifted by the running length delta of the replacements before it, so the
// returned highlights are in the coordinates of the patched line.
func Patch(line string, occurrences []types.Span, replacement string) (string, []types.Span) {
	if len(occurrences) == 0 {
		return line, nil
	}

	patched := line
	highlights := make([]types.Span, 0, len(occurrences))
	offset := 0
	for _, occ := range occurrences {
		start := occ.Start + offset
		end := occ.End + offset
		if occ.Start < 0 || occ.End < occ.Start || end > len(patched) {
			continue
		}
		patched = patched[:start] + replacement + patched[end:]
		highlights = append(highlights, types.Span{Start: start, End: start + len(replacement)})
		offset += len(replacement) - occ.Len()
	}
	return patched, highlights
}

// Render patches every line of a preview in one pass. It is a convenience
// for hosts that hold the line text and occurrences separately.
func Render(documentID string, line int, text string, occurrences []types.Span, replacement string) types.LineRender {
	patched, highlights := Patch(text, occurrences, replacement)
	return types.LineRender{
		DocumentID: documentID,
		Line:       line,
		Original:   text,
		Text:       patched,
		Highlights: highlights,
	}
}
