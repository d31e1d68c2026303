package engine

import (
	"context"
	"errors"

	"increname/index"
	"increname/logger"
	"increname/metrics"
	"increname/types"
)

type EventType string

const (
	EventPreview         EventType = "preview"
	EventCancel          EventType = "cancel"
	EventCommit          EventType = "commit"
	EventReferencesReady EventType = "references_ready"
	EventReferencesError EventType = "references_error"
	EventRenameReady     EventType = "rename_ready"
	EventRenameError     EventType = "rename_error"
)

var eventTypeMap = map[string]EventType{
	string(EventPreview):         EventPreview,
	string(EventCancel):          EventCancel,
	string(EventCommit):          EventCommit,
	string(EventReferencesReady): EventReferencesReady,
	string(EventReferencesError): EventReferencesError,
	string(EventRenameReady):     EventRenameReady,
	string(EventRenameError):     EventRenameError,
}

// EventTypeFromString maps a host event name to an EventType.
func EventTypeFromString(s string) (EventType, bool) {
	t, ok := eventTypeMap[s]
	return t, ok
}

type Event struct {
	Type EventType
	Data any
}

// previewRequest carries a keystroke in and its result out.
type previewRequest struct {
	target types.Target
	name   string
	result PreviewResult
}

type commitRequest struct {
	target types.Target
	name   string
	done   chan *types.Outcome
}

// fetchResult is posted by the reference fetch goroutine.
type fetchResult struct {
	generation uint64
	refs       *types.References
	source     index.Source
	err        error
}

// renameResult is posted by the rename goroutine.
type renameResult struct {
	name    string
	result  *types.RenameResult
	err     error
	metrics *metrics.SessionMetrics
	done    chan *types.Outcome
}

func (e *Engine) handleEvent(event Event) {
	e.mu.Lock()
	defer e.flushEffects()
	defer e.mu.Unlock()

	if e.stopped {
		e.abandon(event)
		return
	}

	logger.Debug("handle event: %s state=%s", event.Type, e.state)

	switch event.Type {
	case EventRenameReady, EventRenameError:
		// Commits reset the session before the rename is issued, so their
		// results are handled outside the session state machine.
		e.handleRenameResult(event.Data.(*renameResult))
	case EventReferencesReady, EventReferencesError:
		res := event.Data.(*fetchResult)
		if res.generation != e.generation {
			logger.Debug("discarding stale references: generation=%d current=%d", res.generation, e.generation)
			e.tracker.TrackStale()
			return
		}
		if res.err != nil && errors.Is(res.err, context.Canceled) {
			logger.Debug("reference fetch canceled: %v", res.err)
		}
		e.dispatch(event)
	default:
		e.dispatch(event)
	}
}
