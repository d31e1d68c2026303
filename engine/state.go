package engine

import (
	"increname/logger"
)

type state int

const (
	stateIdle state = iota
	stateFetchPending
	stateReady
	stateErrored
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateFetchPending:
		return "FetchPending"
	case stateReady:
		return "Ready"
	case stateErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// Transition represents a valid state transition in the session state machine
type Transition struct {
	From   state
	Event  EventType
	Action func(*Engine, Event)
}

// transitions defines all valid session transitions.
//
//	stateIdle
//	└─[Preview]──► stateFetchPending
//	                 │
//	                 ├─[ReferencesReady]──► stateReady ──[Preview]──► render
//	                 │
//	                 └─[ReferencesError / empty result]──► stateErrored
//
// Cancel returns every state to stateIdle. Commit returns every state to
// stateIdle and, unless the session errored, issues the rename.
var transitions = []Transition{
	// From stateIdle
	{stateIdle, EventPreview, (*Engine).doStartFetch},
	{stateIdle, EventCommit, (*Engine).doCommit},

	// From stateFetchPending
	{stateFetchPending, EventPreview, (*Engine).doPreviewPending},
	{stateFetchPending, EventReferencesReady, (*Engine).doReferencesReady},
	{stateFetchPending, EventReferencesError, (*Engine).doReferencesError},
	{stateFetchPending, EventCancel, (*Engine).doCancel},
	{stateFetchPending, EventCommit, (*Engine).doCommit},

	// From stateReady
	{stateReady, EventPreview, (*Engine).doRender},
	{stateReady, EventCancel, (*Engine).doCancel},
	{stateReady, EventCommit, (*Engine).doCommit},

	// From stateErrored
	{stateErrored, EventPreview, (*Engine).doPreviewErrored},
	{stateErrored, EventCancel, (*Engine).doCancel},
	{stateErrored, EventCommit, (*Engine).doCommitErrored},
}

var transitionMap map[transitionKey]*Transition

type transitionKey struct {
	from  state
	event EventType
}

func init() {
	transitionMap = make(map[transitionKey]*Transition)
	for i := range transitions {
		t := &transitions[i]
		transitionMap[transitionKey{from: t.From, event: t.Event}] = t
	}
}

func findTransition(from state, event EventType) *Transition {
	return transitionMap[transitionKey{from: from, event: event}]
}

// dispatch runs the transition for event in the current state. The action
// performs the state change itself so it can branch on runtime data.
func (e *Engine) dispatch(event Event) bool {
	t := findTransition(e.state, event.Type)
	if t == nil {
		logger.Debug("no handler: state=%s event=%s", e.state, event.Type)
		if isStale(event) {
			e.tracker.TrackStale()
		}
		return false
	}
	t.Action(e, event)
	return true
}

func isStale(event Event) bool {
	return event.Type == EventReferencesReady || event.Type == EventReferencesError
}
