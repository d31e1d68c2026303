package text

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"increname/types"
)

func spans(pairs ...int) []types.Span {
	out := make([]types.Span, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, types.Span{Start: pairs[i], End: pairs[i+1]})
	}
	return out
}

func TestPatch(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		occurrences []types.Span
		replacement string
		want        string
		highlights  []types.Span
	}{
		{
			name:        "shorter replacement",
			line:        "foo = foo + foo",
			occurrences: spans(0, 3, 6, 9, 12, 15),
			replacement: "x",
			want:        "x = x + x",
			highlights:  spans(0, 1, 4, 5, 8, 9),
		},
		{
			name:        "longer replacement",
			line:        "foo = foo + foo",
			occurrences: spans(0, 3, 6, 9, 12, 15),
			replacement: "longName",
			want:        "longName = longName + longName",
			highlights:  spans(0, 8, 11, 19, 22, 30),
		},
		{
			name:        "empty replacement",
			line:        "call(foo, foo)",
			occurrences: spans(5, 8, 10, 13),
			replacement: "",
			want:        "call(, )",
			highlights:  spans(5, 5, 7, 7),
		},
		{
			name:        "same length",
			line:        "a.foo()",
			occurrences: spans(2, 5),
			replacement: "bar",
			want:        "a.bar()",
			highlights:  spans(2, 5),
		},
		{
			name:        "occurrence at end of line",
			line:        "return foo",
			occurrences: spans(7, 10),
			replacement: "value",
			want:        "return value",
			highlights:  spans(7, 12),
		},
		{
			name:        "multibyte text before occurrence",
			line:        "// héllo foo",
			occurrences: spans(10, 13),
			replacement: "bar",
			want:        "// héllo bar",
			highlights:  spans(10, 13),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, highlights := Patch(tt.line, tt.occurrences, tt.replacement)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.highlights, highlights)
		})
	}
}

func TestPatchNoOccurrences(t *testing.T) {
	got, highlights := Patch("unchanged", nil, "x")
	assert.Equal(t, "unchanged", got)
	assert.Nil(t, highlights)
}

func TestPatchHighlightsCoverReplacement(t *testing.T) {
	got, highlights := Patch("foo(foo)", spans(0, 3, 4, 7), "renamed")
	for _, h := range highlights {
		assert.Equal(t, "renamed", got[h.Start:h.End])
	}
}

func TestPatchSkipsOutOfRangeOccurrence(t *testing.T) {
	got, highlights := Patch("abc", spans(0, 1, 2, 10), "z")
	assert.Equal(t, "zbc", got)
	assert.Equal(t, spans(0, 1), highlights)
}

func TestRender(t *testing.T) {
	lr := Render("file:///a.go", 4, "foo()", spans(0, 3), "bar")
	assert.Equal(t, types.LineRender{
		DocumentID: "file:///a.go",
		Line:       4,
		Original:   "foo()",
		Text:       "bar()",
		Highlights: spans(0, 3),
	}, lr)
}
