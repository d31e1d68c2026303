package engine

import (
	"context"
	"strings"

	"increname/index"
	"increname/logger"
	"increname/metrics"
	"increname/text"
	"increname/types"
)

func (e *Engine) doStartFetch(event Event) {
	req := event.Data.(*previewRequest)

	e.generation++
	generation := e.generation
	m := metrics.NewSession()
	e.session = &session{target: req.target, metrics: m}
	e.state = stateFetchPending
	e.tracker.TrackStarted(m)
	logger.Debug("rename session started: doc=%s line=%d col=%d generation=%d",
		req.target.DocumentID, req.target.Line, req.target.Col, generation)

	if e.provider == nil {
		e.fail(ErrNoCapableProvider)
		req.result = PreviewResult{Err: e.session.err}
		return
	}

	ctx, cancel := context.WithTimeout(e.mainCtx, e.config.FetchTimeout)
	e.fetchCancel = cancel
	loopCtx := e.mainCtx
	target := req.target

	go func() {
		defer cancel()
		defer logger.Trace("engine.fetchReferences")()

		res := &fetchResult{generation: generation}
		res.refs, res.err = e.provider.FindReferences(ctx, target)
		if res.err == nil && (res.refs == nil || len(res.refs.Locations) == 0) {
			res.err = ErrNothingToRename
		}
		if res.err == nil {
			// The host is read here, off the event loop, so that building
			// the index later never needs to call out.
			res.source, res.err = e.host.ReadLines(ctx, res.refs.Locations)
		}

		eventType := EventReferencesReady
		if res.err != nil {
			eventType = EventReferencesError
		}
		e.post(loopCtx, Event{Type: eventType, Data: res})
	}()

	req.result = PreviewResult{Pending: true}
}

func (e *Engine) doPreviewPending(event Event) {
	req := event.Data.(*previewRequest)
	req.result = PreviewResult{Pending: true}
}

func (e *Engine) doPreviewErrored(event Event) {
	req := event.Data.(*previewRequest)
	req.result = PreviewResult{Err: e.session.err}
}

func (e *Engine) doReferencesReady(event Event) {
	res := event.Data.(*fetchResult)
	e.fetchCancel = nil

	ix := index.Build(res.refs.Locations, res.source, index.ParseEncoding(res.refs.Encoding))
	stats := ix.Stats()
	logger.Debug("reference index built: lines=%d kept=%d multiline=%d unloaded=%d duplicates=%d overlaps=%d",
		ix.Len(), stats.Kept, stats.MultiLine, stats.NotLoaded, stats.Duplicates, stats.Overlaps)

	e.session.index = ix
	e.state = stateReady
	e.deferEffect(e.host.RefreshPreview)
}

func (e *Engine) doReferencesError(event Event) {
	res := event.Data.(*fetchResult)
	e.fetchCancel = nil
	e.fail(asRenameError(res.err, KindFetchFailed))
	// Hosts waiting on the pending preview pick the error up on refresh.
	e.deferEffect(e.host.RefreshPreview)
}

// fail moves the session to Errored. The error is kept until the user
// commits or cancels.
func (e *Engine) fail(err *RenameError) {
	if err.Kind == KindNothingToRename {
		logger.Debug("rename session: %v", err)
	} else {
		logger.Warn("rename session failed: %v", err)
	}
	e.tracker.TrackError(err.Kind.String())
	e.session.err = err
	e.state = stateErrored
}

func (e *Engine) doRender(event Event) {
	req := event.Data.(*previewRequest)

	if !e.config.PreviewEmptyName && strings.TrimSpace(req.name) == "" {
		req.result = PreviewResult{}
		return
	}

	r := e.render(req.name)
	if r.Empty() {
		req.result = PreviewResult{}
		return
	}
	e.tracker.TrackShown(e.session.metrics, len(r.Lines))
	req.result = PreviewResult{Render: r}
}

// render patches every cached line with name. The index itself is never
// modified, so every keystroke starts from the original text.
func (e *Engine) render(name string) *types.RenderResult {
	r := &types.RenderResult{Name: name}
	e.session.index.Each(func(doc string, line int, l *index.Line) {
		r.Lines = append(r.Lines, text.Render(doc, line, l.Text, l.Occurrences, name))
	})
	return r
}

func (e *Engine) doCancel(event Event) {
	logger.Debug("rename session canceled in state %s", e.state)
	e.tracker.TrackDisposed(e.session.metrics)
	e.resetSession()
}
