package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"increname/logger"
)

const (
	EventStarted   = "rename_session_started"
	EventShown     = "rename_preview_shown"
	EventCommitted = "rename_committed"
	EventDisposed  = "rename_session_disposed"
	EventStale     = "rename_stale_response"
	EventError     = "rename_error"
)

// SessionMetrics identifies one rename session from start to disposal.
type SessionMetrics struct {
	ID        string
	StartedAt time.Time
	Previews  int
}

// NewSession starts measuring a session.
func NewSession() *SessionMetrics {
	return &SessionMetrics{ID: uuid.NewString(), StartedAt: time.Now()}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Sessions         int            `json:"sessions"`
	Previews         int            `json:"previews"`
	Commits          int            `json:"commits"`
	Disposed         int            `json:"disposed"`
	StaleResponses   int            `json:"stale_responses"`
	Errors           map[string]int `json:"errors"`
	RenamedInstances int            `json:"renamed_instances"`
	RenamedFiles     int            `json:"renamed_files"`
	AvgLifespanMs    int64          `json:"avg_lifespan_ms"`
}

// Tracker collects in-process session statistics. A nil Tracker is valid and
// records nothing.
type Tracker struct {
	mu        sync.Mutex
	snap      Snapshot
	lifespans time.Duration
	ended     int
}

func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Errors: make(map[string]int)}}
}

func (t *Tracker) TrackStarted(m *SessionMetrics) {
	if t == nil || m == nil {
		return
	}
	t.mu.Lock()
	t.snap.Sessions++
	t.mu.Unlock()
	logger.Debug("metrics: %s id=%s", EventStarted, m.ID)
}

func (t *Tracker) TrackShown(m *SessionMetrics, lines int) {
	if t == nil || m == nil {
		return
	}
	t.mu.Lock()
	m.Previews++
	t.snap.Previews++
	t.mu.Unlock()
	logger.Debug("metrics: %s id=%s lines=%d", EventShown, m.ID, lines)
}

func (t *Tracker) TrackCommitted(m *SessionMetrics, instances, files int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.snap.Commits++
	t.snap.RenamedInstances += instances
	t.snap.RenamedFiles += files
	t.endLocked(m)
	t.mu.Unlock()
	logger.Debug("metrics: %s instances=%d files=%d", EventCommitted, instances, files)
}

func (t *Tracker) TrackDisposed(m *SessionMetrics) {
	if t == nil || m == nil {
		return
	}
	t.mu.Lock()
	t.snap.Disposed++
	t.endLocked(m)
	t.mu.Unlock()
	logger.Debug("metrics: %s id=%s previews=%d", EventDisposed, m.ID, m.Previews)
}

func (t *Tracker) TrackStale() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.snap.StaleResponses++
	t.mu.Unlock()
	logger.Debug("metrics: %s", EventStale)
}

func (t *Tracker) TrackError(kind string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.snap.Errors[kind]++
	t.mu.Unlock()
	logger.Debug("metrics: %s kind=%s", EventError, kind)
}

func (t *Tracker) endLocked(m *SessionMetrics) {
	if m == nil {
		return
	}
	t.lifespans += time.Since(m.StartedAt)
	t.ended++
	t.snap.AvgLifespanMs = (t.lifespans / time.Duration(t.ended)).Milliseconds()
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{Errors: map[string]int{}}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.snap
	s.Errors = make(map[string]int, len(t.snap.Errors))
	for k, v := range t.snap.Errors {
		s.Errors[k] = v
	}
	return s
}

// Save writes the snapshot as JSON to path, creating parent directories.
func (t *Tracker) Save(path string) error {
	data, err := json.MarshalIndent(t.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}
