package engine

import (
	"context"
	"sync"

	"increname/index"
	"increname/logger"
	"increname/metrics"
	"increname/types"
)

// session is the state of one rename interaction, from the first preview
// keystroke until commit or cancel.
type session struct {
	target  types.Target
	index   *index.LineIndex
	err     *RenameError
	metrics *metrics.SessionMetrics
}

type Engine struct {
	provider Provider
	host     Host
	config   Config
	tracker  *metrics.Tracker

	mu          sync.Mutex
	state       state
	session     *session
	generation  uint64
	fetchCancel context.CancelFunc
	eventChan   chan Event

	// effects are host calls queued while mu is held and run after it is
	// released, so a host that calls back into the engine cannot deadlock.
	effects []func()

	mainCtx    context.Context
	mainCancel context.CancelFunc
	stopped    bool
	stopOnce   sync.Once
}

// NewEngine creates an engine. A nil tracker disables statistics.
func NewEngine(provider Provider, host Host, config Config, tracker *metrics.Tracker) *Engine {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if config.RenameTimeout <= 0 {
		config.RenameTimeout = DefaultConfig().RenameTimeout
	}
	mainCtx, mainCancel := context.WithCancel(context.Background())
	return &Engine{
		provider:   provider,
		host:       host,
		config:     config,
		tracker:    tracker,
		state:      stateIdle,
		eventChan:  make(chan Event, 100),
		mainCtx:    mainCtx,
		mainCancel: mainCancel,
	}
}

func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.mainCancel()
	e.mainCtx, e.mainCancel = context.WithCancel(ctx)
	loopCtx := e.mainCtx
	e.mu.Unlock()

	go e.eventLoop(loopCtx)
	logger.Info("engine started")
}

// Stop cancels in-flight requests and ends the event loop.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		logger.Info("stopping engine...")
		e.stopped = true
		e.mainCancel()
		if e.session != nil {
			e.tracker.TrackDisposed(e.session.metrics)
		}
		e.resetSession()
		e.drainLocked()
		logger.Info("engine stopped")
	})
}

func (e *Engine) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event loop panic recovered: %v", r)
			e.eventLoop(ctx)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-e.eventChan:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("event handler panic recovered for event %v: %v", event.Type, r)
					}
				}()
				e.handleEvent(event)
			}()
		}
	}
}

// post delivers an event from a worker goroutine to the event loop. It
// reports false when the engine stopped first. An event accepted by post is
// always either handled or abandoned by Stop.
func (e *Engine) post(ctx context.Context, event Event) bool {
	e.mu.Lock()
	if e.stopped || ctx.Err() != nil {
		e.mu.Unlock()
		return false
	}
	select {
	case e.eventChan <- event:
		e.mu.Unlock()
		return true
	default:
	}
	e.mu.Unlock()

	// Queue is full. Wait for the loop without holding the lock.
	select {
	case e.eventChan <- event:
	case <-ctx.Done():
		return false
	}
	e.mu.Lock()
	if e.stopped {
		e.drainLocked()
	}
	e.mu.Unlock()
	return true
}

// drainLocked abandons every queued event. Caller holds mu after stopping.
func (e *Engine) drainLocked() {
	for {
		select {
		case event := <-e.eventChan:
			e.abandon(event)
		default:
			return
		}
	}
}

// abandon resolves the commit waiting on an event the loop will never handle.
func (e *Engine) abandon(event Event) {
	if res, ok := event.Data.(*renameResult); ok {
		e.tracker.TrackDisposed(res.metrics)
		res.done <- stoppedOutcome()
	}
}

func stoppedOutcome() *types.Outcome {
	return &types.Outcome{Err: context.Canceled, Message: "engine stopped"}
}

// deferEffect queues a host call to run once the lock is released.
func (e *Engine) deferEffect(fn func()) {
	e.effects = append(e.effects, fn)
}

func (e *Engine) flushEffects() {
	e.mu.Lock()
	effects := e.effects
	e.effects = nil
	e.mu.Unlock()

	for _, fn := range effects {
		fn()
	}
}

// Preview handles one keystroke of the rename command. The first call of a
// session starts the reference fetch and returns a pending result.
func (e *Engine) Preview(target types.Target, name string) PreviewResult {
	defer logger.Trace("engine.Preview")()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return PreviewResult{}
	}
	req := &previewRequest{target: target, name: name}
	e.dispatch(Event{Type: EventPreview, Data: req})
	e.mu.Unlock()

	e.flushEffects()
	return req.result
}

// Cancel discards the current session. Any reference fetch still in flight
// is ignored when it completes.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if !e.stopped {
		e.dispatch(Event{Type: EventCancel})
	}
	e.mu.Unlock()
	e.flushEffects()
}

// Commit ends the session and renames the symbol to name. The returned
// channel receives the outcome once the rename has been applied or failed.
func (e *Engine) Commit(target types.Target, name string) <-chan *types.Outcome {
	done := make(chan *types.Outcome, 1)

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		done <- stoppedOutcome()
		return done
	}
	e.dispatch(Event{Type: EventCommit, Data: &commitRequest{target: target, name: name, done: done}})
	e.mu.Unlock()

	e.flushEffects()
	return done
}

// Stats returns the session statistics collected so far.
func (e *Engine) Stats() metrics.Snapshot {
	return e.tracker.Snapshot()
}

// State returns the name of the current session state.
func (e *Engine) State() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.String()
}

// resetSession returns to Idle and invalidates any outstanding fetch.
func (e *Engine) resetSession() {
	if e.fetchCancel != nil {
		e.fetchCancel()
		e.fetchCancel = nil
	}
	e.generation++
	e.session = nil
	e.state = stateIdle
}
