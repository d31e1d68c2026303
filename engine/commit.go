package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"go.lsp.dev/protocol"

	"increname/logger"
	"increname/metrics"
	"increname/types"
)

func (e *Engine) doCommit(event Event) {
	req := event.Data.(*commitRequest)

	target := req.target
	var m *metrics.SessionMetrics
	if e.session != nil {
		target = e.session.target
		m = e.session.metrics
	}
	e.resetSession()

	if e.provider == nil {
		e.tracker.TrackError(KindNoCapableProvider.String())
		e.tracker.TrackDisposed(m)
		e.finishCommit(req.done, ErrNoCapableProvider, types.NotifyError)
		return
	}
	e.startRename(target, req.name, m, req.done)
}

// doCommitErrored reports the stored session error instead of renaming.
func (e *Engine) doCommitErrored(event Event) {
	req := event.Data.(*commitRequest)
	err := e.session.err
	e.tracker.TrackDisposed(e.session.metrics)
	e.resetSession()

	level := types.NotifyError
	if err.Kind == KindNothingToRename {
		level = types.NotifyWarn
	}
	e.finishCommit(req.done, err, level)
}

func (e *Engine) startRename(target types.Target, name string, m *metrics.SessionMetrics, done chan *types.Outcome) {
	ctx, cancel := context.WithTimeout(e.mainCtx, e.config.RenameTimeout)
	loopCtx := e.mainCtx
	logger.Debug("rename requested: doc=%s line=%d col=%d name=%q", target.DocumentID, target.Line, target.Col, name)

	go func() {
		defer cancel()
		defer logger.Trace("engine.rename")()

		res := &renameResult{name: name, done: done, metrics: m}
		res.result, res.err = e.provider.Rename(ctx, target, name)

		eventType := EventRenameReady
		if res.err != nil {
			eventType = EventRenameError
		}
		if !e.post(loopCtx, Event{Type: eventType, Data: res}) {
			e.tracker.TrackDisposed(m)
			done <- stoppedOutcome()
		}
	}()
}

func (e *Engine) handleRenameResult(res *renameResult) {
	if res.err != nil {
		err := asRenameError(res.err, KindRenameFailed)
		e.tracker.TrackError(err.Kind.String())
		e.tracker.TrackDisposed(res.metrics)
		e.finishCommit(res.done, err, types.NotifyError)
		return
	}

	var edit *protocol.WorkspaceEdit
	if res.result != nil {
		edit = res.result.Edit
	}
	instances, files := Summarize(edit)
	if instances == 0 {
		e.tracker.TrackError(KindNothingRenamed.String())
		e.tracker.TrackDisposed(res.metrics)
		e.finishCommit(res.done, ErrNothingRenamed, types.NotifyWarn)
		return
	}

	raw := res.result.Raw
	if len(raw) == 0 {
		data, err := json.Marshal(edit)
		if err != nil {
			e.tracker.TrackDisposed(res.metrics)
			e.finishCommit(res.done, newError(KindRenameFailed, err), types.NotifyError)
			return
		}
		raw = data
	}
	encoding := res.result.Encoding

	outcome := &types.Outcome{
		ChangedInstances: instances,
		ChangedFiles:     files,
		Message:          summaryMessage(instances, files),
		Edit:             raw,
	}
	logger.Info("rename to %q: %s", res.name, outcome.Message)

	m := res.metrics
	e.deferEffect(func() {
		if err := e.host.ApplyWorkspaceEdit(raw, encoding); err != nil {
			rerr := newError(KindRenameFailed, err)
			logger.Error("applying workspace edit: %v", err)
			e.tracker.TrackError(rerr.Kind.String())
			e.tracker.TrackDisposed(m)
			e.host.Notify(rerr.Error(), types.NotifyError)
			outcome.ChangedInstances, outcome.ChangedFiles = 0, 0
			outcome.Err = rerr
			outcome.Message = rerr.Error()
			res.done <- outcome
			return
		}
		e.tracker.TrackCommitted(m, instances, files)
		if e.config.ShowMessage {
			e.host.Notify(outcome.Message, types.NotifyInfo)
		}
		if hook := e.config.PostCommitHook; hook != nil {
			hook(edit, raw)
		}
		res.done <- outcome
	})
}

// finishCommit notifies err and resolves the commit with it.
func (e *Engine) finishCommit(done chan *types.Outcome, err *RenameError, level types.NotifyLevel) {
	if level == types.NotifyError {
		logger.Error("rename: %v", err)
	} else {
		logger.Info("rename: %v", err)
	}
	outcome := &types.Outcome{Err: err, Message: err.Error()}
	e.deferEffect(func() {
		e.host.Notify(err.Error(), level)
		done <- outcome
	})
}

// Summarize counts the text edits and distinct files in a workspace edit.
// Both the changes map and the documentChanges list are understood; when a
// server sends both, documentChanges wins.
func Summarize(edit *protocol.WorkspaceEdit) (instances, files int) {
	if edit == nil {
		return 0, 0
	}
	if len(edit.DocumentChanges) > 0 {
		seen := make(map[protocol.DocumentURI]struct{})
		for _, change := range edit.DocumentChanges {
			if len(change.Edits) == 0 {
				continue
			}
			instances += len(change.Edits)
			seen[change.TextDocument.URI] = struct{}{}
		}
		return instances, len(seen)
	}
	for _, edits := range edit.Changes {
		if len(edits) == 0 {
			continue
		}
		instances += len(edits)
		files++
	}
	return instances, files
}

func summaryMessage(instances, files int) string {
	return fmt.Sprintf("Renamed %d %s in %d %s",
		instances, plural(instances, "instance"), files, plural(files, "file"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
