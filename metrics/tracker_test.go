package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCounts(t *testing.T) {
	tr := NewTracker()

	s1 := NewSession()
	tr.TrackStarted(s1)
	tr.TrackShown(s1, 3)
	tr.TrackShown(s1, 3)
	tr.TrackCommitted(s1, 4, 2)

	s2 := NewSession()
	tr.TrackStarted(s2)
	tr.TrackStale()
	tr.TrackError("fetch_failed")
	tr.TrackDisposed(s2)

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.Sessions)
	assert.Equal(t, 2, snap.Previews)
	assert.Equal(t, 1, snap.Commits)
	assert.Equal(t, 1, snap.Disposed)
	assert.Equal(t, 1, snap.StaleResponses)
	assert.Equal(t, 4, snap.RenamedInstances)
	assert.Equal(t, 2, snap.RenamedFiles)
	assert.Equal(t, map[string]int{"fetch_failed": 1}, snap.Errors)
	assert.Equal(t, 2, s1.Previews)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker()
	tr.TrackError("x")
	snap := tr.Snapshot()
	snap.Errors["x"] = 99
	assert.Equal(t, 1, tr.Snapshot().Errors["x"])
}

func TestNilTracker(t *testing.T) {
	var tr *Tracker
	tr.TrackStarted(NewSession())
	tr.TrackStale()
	tr.TrackError("x")
	assert.Zero(t, tr.Snapshot().Sessions)
}

func TestSave(t *testing.T) {
	tr := NewTracker()
	tr.TrackStarted(NewSession())

	path := filepath.Join(t.TempDir(), "nested", "stats.json")
	require.NoError(t, tr.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 1, snap.Sessions)
}
