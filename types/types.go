package types

import (
	"encoding/json"

	"go.lsp.dev/protocol"
)

// Span is a half-open byte range [Start, End) within a single line.
type Span struct {
	Start int `json:"start" msgpack:"start"`
	End   int `json:"end" msgpack:"end"`
}

// Len returns the byte length of the span.
func (s Span) Len() int { return s.End - s.Start }

// Location is a raw reference as reported by a language server: a range in
// a document, in the server's offset encoding.
type Location struct {
	DocumentID string // document URI
	StartLine  int    // 0-indexed
	StartCol   int
	EndLine    int
	EndCol     int
}

// LocationFromProtocol converts an LSP location.
func LocationFromProtocol(loc protocol.Location) Location {
	return Location{
		DocumentID: string(loc.URI),
		StartLine:  int(loc.Range.Start.Line),
		StartCol:   int(loc.Range.Start.Character),
		EndLine:    int(loc.Range.End.Line),
		EndCol:     int(loc.Range.End.Character),
	}
}

// Target identifies the symbol a rename session was started on.
type Target struct {
	DocumentID string // document URI
	Buffer     int    // host buffer handle, 0 when the host has none
	Line       int    // 0-indexed
	Col        int    // 0-indexed byte column
	LineText   string // text of Line when the session started
}

// References is the result of a reference query.
type References struct {
	Locations []Location
	// Encoding is the offset encoding the columns are expressed in
	// ("utf-8", "utf-16" or "utf-32").
	Encoding string
}

// RenameResult is a workspace edit returned by a rename request. Raw is kept
// so hosts can apply exactly what the server sent.
type RenameResult struct {
	Edit     *protocol.WorkspaceEdit
	Raw      json.RawMessage
	Encoding string
}

// LineRender is the preview of one line with the new name substituted.
type LineRender struct {
	DocumentID string `json:"document"`
	Line       int    `json:"line"` // 0-indexed
	Original   string `json:"original"`
	Text       string `json:"text"`
	Highlights []Span `json:"highlights"`
}

// RenderResult is the full preview for one keystroke.
type RenderResult struct {
	Name  string       `json:"name"`
	Lines []LineRender `json:"lines"`
}

// Empty reports whether the preview has nothing to show.
func (r *RenderResult) Empty() bool {
	return r == nil || len(r.Lines) == 0
}

// Documents returns the number of distinct documents in the preview.
func (r *RenderResult) Documents() int {
	if r == nil {
		return 0
	}
	seen := make(map[string]struct{})
	for _, l := range r.Lines {
		seen[l.DocumentID] = struct{}{}
	}
	return len(seen)
}

// Outcome reports what a committed rename changed.
type Outcome struct {
	ChangedInstances int             `json:"changed_instances"`
	ChangedFiles     int             `json:"changed_files"`
	Message          string          `json:"message"`
	Edit             json.RawMessage `json:"edit,omitempty"`
	Err              error           `json:"-"`
}

// NotifyLevel mirrors vim.log.levels.
type NotifyLevel int

const (
	NotifyDebug NotifyLevel = 1
	NotifyInfo  NotifyLevel = 2
	NotifyWarn  NotifyLevel = 3
	NotifyError NotifyLevel = 4
)

func (l NotifyLevel) String() string {
	switch l {
	case NotifyDebug:
		return "debug"
	case NotifyInfo:
		return "info"
	case NotifyWarn:
		return "warn"
	case NotifyError:
		return "error"
	default:
		return "unknown"
	}
}
