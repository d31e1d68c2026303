// Package index turns raw reference locations into a per-document, per-line
// cache of occurrence spans that can be patched on every keystroke.
package index

import (
	"sort"

	"increname/types"
)

// Source supplies the current text of loaded documents.
type Source interface {
	// Line returns the text of a line, or ok=false when the document is not
	// loaded or has no such line.
	Line(documentID string, line int) (text string, ok bool)
}

// LineKey addresses one line of one document.
type LineKey struct {
	DocumentID string
	Line       int
}

// Snapshot is a Source backed by a fixed set of line texts, captured before
// the index is built so that building never calls back into the host.
type Snapshot map[LineKey]string

func (s Snapshot) Line(documentID string, line int) (string, bool) {
	text, ok := s[LineKey{DocumentID: documentID, Line: line}]
	return text, ok
}

// Set records the text of one line.
func (s Snapshot) Set(documentID string, line int, text string) {
	s[LineKey{DocumentID: documentID, Line: line}] = text
}

// Line is the cached state of one line: its text when the session started
// and the byte spans of every occurrence, sorted by start.
type Line struct {
	Text        string
	Occurrences []types.Span
}

// Stats counts what Build kept and why it dropped the rest.
type Stats struct {
	Kept       int
	MultiLine  int
	NotLoaded  int
	Duplicates int
	Overlaps   int
	Empty      int
}

// Dropped returns the total number of discarded locations.
func (s Stats) Dropped() int {
	return s.MultiLine + s.NotLoaded + s.Duplicates + s.Overlaps + s.Empty
}

// LineIndex maps documents to lines to cached line state.
type LineIndex struct {
	docs  map[string]map[int]*Line
	lines int
	stats Stats
}

// New returns an empty index.
func New() *LineIndex {
	return &LineIndex{docs: make(map[string]map[int]*Line)}
}

// Empty reports whether there is nothing to preview.
func (ix *LineIndex) Empty() bool { return ix == nil || ix.lines == 0 }

// Len returns the number of cached lines across all documents.
func (ix *LineIndex) Len() int {
	if ix == nil {
		return 0
	}
	return ix.lines
}

// Occurrences returns the number of cached occurrences.
func (ix *LineIndex) Occurrences() int {
	n := 0
	ix.Each(func(_ string, _ int, l *Line) { n += len(l.Occurrences) })
	return n
}

// Stats returns the counters collected while building the index.
func (ix *LineIndex) Stats() Stats {
	if ix == nil {
		return Stats{}
	}
	return ix.stats
}

// Documents returns the indexed document IDs in sorted order.
func (ix *LineIndex) Documents() []string {
	if ix == nil {
		return nil
	}
	docs := make([]string, 0, len(ix.docs))
	for doc := range ix.docs {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	return docs
}

// Lines returns the indexed line numbers of a document in ascending order.
func (ix *LineIndex) Lines(documentID string) []int {
	if ix == nil {
		return nil
	}
	lines := make([]int, 0, len(ix.docs[documentID]))
	for n := range ix.docs[documentID] {
		lines = append(lines, n)
	}
	sort.Ints(lines)
	return lines
}

// Line returns the cached state of one line.
func (ix *LineIndex) Line(documentID string, line int) (*Line, bool) {
	if ix == nil {
		return nil, false
	}
	l, ok := ix.docs[documentID][line]
	return l, ok
}

// Each visits every cached line, documents sorted, lines ascending.
func (ix *LineIndex) Each(fn func(documentID string, line int, l *Line)) {
	for _, doc := range ix.Documents() {
		for _, n := range ix.Lines(doc) {
			fn(doc, n, ix.docs[doc][n])
		}
	}
}

// add records an occurrence unless it duplicates one already kept on the
// same line. An occurrence is a duplicate when its start or its end equals
// the start or end of an existing occurrence respectively.
func (ix *LineIndex) add(documentID string, line int, text string, span types.Span) bool {
	lines, ok := ix.docs[documentID]
	if !ok {
		lines = make(map[int]*Line)
		ix.docs[documentID] = lines
	}
	l, ok := lines[line]
	if !ok {
		l = &Line{Text: text}
		lines[line] = l
		ix.lines++
	}
	for _, existing := range l.Occurrences {
		if existing.Start == span.Start || existing.End == span.End {
			return false
		}
	}
	l.Occurrences = append(l.Occurrences, span)
	return true
}

// Build converts raw locations into a LineIndex.
//
// Locations spanning more than one line are dropped, as are locations in
// documents src does not have loaded. Columns are converted from enc to byte
// offsets against the captured line text before deduplication. The result
// may be empty, which callers treat as nothing to preview.
func Build(locations []types.Location, src Source, enc Encoding) *LineIndex {
	ix := New()
	for _, loc := range locations {
		if loc.StartLine != loc.EndLine {
			ix.stats.MultiLine++
			continue
		}
		text, ok := src.Line(loc.DocumentID, loc.StartLine)
		if !ok {
			ix.stats.NotLoaded++
			continue
		}
		span := types.Span{
			Start: ByteColumn(text, loc.StartCol, enc),
			End:   ByteColumn(text, loc.EndCol, enc),
		}
		if span.End <= span.Start {
			ix.stats.Empty++
			continue
		}
		if !ix.add(loc.DocumentID, loc.StartLine, text, span) {
			ix.stats.Duplicates++
		}
	}

	for _, lines := range ix.docs {
		for _, l := range lines {
			ix.stats.Overlaps += l.normalize()
		}
	}
	ix.stats.Kept = ix.Occurrences()
	return ix
}

// normalize sorts occurrences by start and drops any that overlap an earlier
// one, returning how many were dropped.
func (l *Line) normalize() int {
	sort.Slice(l.Occurrences, func(i, j int) bool {
		return l.Occurrences[i].Start < l.Occurrences[j].Start
	})
	kept := l.Occurrences[:0]
	dropped := 0
	for _, occ := range l.Occurrences {
		if n := len(kept); n > 0 && occ.Start < kept[n-1].End {
			dropped++
			continue
		}
		kept = append(kept, occ)
	}
	l.Occurrences = kept
	return dropped
}
