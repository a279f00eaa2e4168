package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leadbridge/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSnapshots is an in-memory SnapshotStore for store tests.
type memSnapshots struct {
	mu   sync.Mutex
	last *domain.PanelSnapshot
}

func (m *memSnapshots) Save(_ context.Context, snap *domain.PanelSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = snap
	return nil
}

func (m *memSnapshots) Load(_ context.Context) (*domain.PanelSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func newTestStore(t *testing.T) *TaskStore {
	t.Helper()
	return NewTaskStore(TaskStoreConfig{CleanupGrace: 50 * time.Millisecond})
}

func addRunning(t *testing.T, s *TaskStore, id string) {
	t.Helper()
	require.NoError(t, s.Add(&domain.Task{
		ID:     id,
		Kind:   domain.TaskKindLeadUpload,
		Status: domain.TaskStatusRunning,
	}))
}

func TestTaskStore_AddRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	addRunning(t, s, "upload-1")

	err := s.Add(&domain.Task{ID: "upload-1"})
	require.ErrorIs(t, err, ErrTaskExists)

	task, found := s.Get("upload-1")
	require.True(t, found)
	assert.Equal(t, domain.TaskStatusRunning, task.Status)
}

func TestTaskStore_UpdateProgressClampsAndDerivesProcessed(t *testing.T) {
	s := newTestStore(t)
	addRunning(t, s, "upload-1")

	succ, failed := 300, 5
	s.UpdateProgress("upload-1", 60, &succ, &failed)

	task, _ := s.Get("upload-1")
	assert.Equal(t, 60.0, task.Progress)
	require.NotNil(t, task.Metadata)
	assert.Equal(t, 300, task.Metadata.SuccessfulRecords)
	assert.Equal(t, 5, task.Metadata.FailedRecords)
	assert.Equal(t, 305, task.Metadata.ProcessedRecords)

	s.UpdateProgress("upload-1", 150, nil, nil)
	task, _ = s.Get("upload-1")
	assert.Equal(t, 100.0, task.Progress)

	s.UpdateProgress("upload-1", -3, nil, nil)
	task, _ = s.Get("upload-1")
	assert.Equal(t, 0.0, task.Progress)
}

func TestTaskStore_UpdateProgressUnknownIDIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NotPanics(t, func() {
		s.UpdateProgress("missing", 50, nil, nil)
		s.SetStatus("missing", domain.TaskStatusRunning)
		s.Complete("missing")
		s.Fail("missing", "boom")
		s.Remove("missing")
	})
}

func TestTaskStore_ProgressOnPausedTaskForcesResume(t *testing.T) {
	s := newTestStore(t)
	addRunning(t, s, "upload-1")
	s.SetStatus("upload-1", domain.TaskStatusPaused)

	s.UpdateProgress("upload-1", 40, nil, nil)

	task, _ := s.Get("upload-1")
	assert.Equal(t, domain.TaskStatusRunning, task.Status)
}

func TestTaskStore_CompleteForcesProgressAndStampsTime(t *testing.T) {
	s := newTestStore(t)
	addRunning(t, s, "upload-1")
	s.UpdateProgress("upload-1", 42, nil, nil)

	s.Complete("upload-1")

	task, _ := s.Get("upload-1")
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, 100.0, task.Progress)
	require.NotNil(t, task.CompletedAt)
}

func TestTaskStore_CompletedTaskAutoRemovedAfterGrace(t *testing.T) {
	s := newTestStore(t)
	addRunning(t, s, "upload-1")

	s.Complete("upload-1")
	_, found := s.Get("upload-1")
	require.True(t, found, "task should linger during the grace period")

	require.Eventually(t, func() bool {
		_, found := s.Get("upload-1")
		return !found
	}, time.Second, 10*time.Millisecond)
}

func TestTaskStore_ManualRemoveBeforeCleanupTimerIsHarmless(t *testing.T) {
	s := newTestStore(t)
	addRunning(t, s, "upload-1")

	s.Complete("upload-1")
	s.Remove("upload-1")
	_, found := s.Get("upload-1")
	require.False(t, found)

	// The deferred cleanup still fires against the missing id.
	time.Sleep(120 * time.Millisecond)
	_, found = s.Get("upload-1")
	assert.False(t, found)
}

func TestTaskStore_FailedTaskIsNotAutoRemoved(t *testing.T) {
	s := newTestStore(t)
	addRunning(t, s, "upload-1")

	s.Fail("upload-1", "backend exploded")
	time.Sleep(120 * time.Millisecond)

	task, found := s.Get("upload-1")
	require.True(t, found)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Equal(t, "backend exploded", task.Error)
	require.NotNil(t, task.CompletedAt)
}

func TestTaskStore_ClearCompletedSweepsEverythingNotActive(t *testing.T) {
	s := newTestStore(t)
	for _, tc := range []struct {
		id     string
		status domain.TaskStatus
	}{
		{"t-running", domain.TaskStatusRunning},
		{"t-pending", domain.TaskStatusPending},
		{"t-completed", domain.TaskStatusCompleted},
		{"t-failed", domain.TaskStatusFailed},
		{"t-paused", domain.TaskStatusPaused},
	} {
		require.NoError(t, s.Add(&domain.Task{ID: tc.id, Status: tc.status}))
	}

	removed := s.ClearCompleted()
	assert.Equal(t, 3, removed)

	_, found := s.Get("t-running")
	assert.True(t, found)
	_, found = s.Get("t-pending")
	assert.True(t, found)
	for _, id := range []string{"t-completed", "t-failed", "t-paused"} {
		_, found := s.Get(id)
		assert.False(t, found, id)
	}
}

func TestTaskStore_SubscribableIDsIncludePaused(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(&domain.Task{ID: "a", Status: domain.TaskStatusRunning}))
	require.NoError(t, s.Add(&domain.Task{ID: "b", Status: domain.TaskStatusPaused}))
	require.NoError(t, s.Add(&domain.Task{ID: "c", Status: domain.TaskStatusCompleted}))
	require.NoError(t, s.Add(&domain.Task{ID: "d", Status: domain.TaskStatusFailed}))

	assert.Equal(t, []string{"a", "b"}, s.SubscribableIDs())
	assert.Equal(t, 1, s.ActiveCount())
	assert.True(t, s.HasActive())
}

func TestTaskStore_ListOrderedByCreation(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.Add(&domain.Task{ID: "late", CreatedAt: base.Add(2 * time.Minute)}))
	require.NoError(t, s.Add(&domain.Task{ID: "early", CreatedAt: base}))
	require.NoError(t, s.Add(&domain.Task{ID: "mid", CreatedAt: base.Add(time.Minute)}))

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "early", list[0].ID)
	assert.Equal(t, "mid", list[1].ID)
	assert.Equal(t, "late", list[2].ID)
}

func TestTaskStore_PersistAndRehydrate(t *testing.T) {
	snaps := &memSnapshots{}
	s := NewTaskStore(TaskStoreConfig{Snapshots: snaps, CleanupGrace: time.Minute})
	addRunning(t, s, "upload-1")
	succ, failed := 10, 2
	s.UpdateProgress("upload-1", 30, &succ, &failed)
	s.ToggleMinimized()

	restored := NewTaskStore(TaskStoreConfig{Snapshots: snaps, CleanupGrace: time.Minute})
	require.NoError(t, restored.Rehydrate(context.Background()))

	task, found := restored.Get("upload-1")
	require.True(t, found)
	assert.Equal(t, 30.0, task.Progress)
	require.NotNil(t, task.Metadata)
	assert.Equal(t, 12, task.Metadata.ProcessedRecords)
	assert.True(t, restored.Minimized())
}

func TestTaskStore_ChangeFeed(t *testing.T) {
	s := newTestStore(t)
	changes, cancel := s.Subscribe()
	defer cancel()

	addRunning(t, s, "upload-1")
	s.Remove("upload-1")

	first := <-changes
	assert.Equal(t, domain.TaskAdded, first.Kind)
	assert.Equal(t, "upload-1", first.TaskID)
	require.NotNil(t, first.Task)

	second := <-changes
	assert.Equal(t, domain.TaskRemoved, second.Kind)
	assert.Nil(t, second.Task)
}

func TestTaskStore_StaleSweepFailsSilentTasks(t *testing.T) {
	s := NewTaskStore(TaskStoreConfig{
		CleanupGrace:  time.Minute,
		StaleAfter:    30 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})
	addRunning(t, s, "upload-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartStaleSweep(ctx)

	require.Eventually(t, func() bool {
		task, found := s.Get("upload-1")
		return found && task.Status == domain.TaskStatusFailed
	}, time.Second, 10*time.Millisecond)

	task, _ := s.Get("upload-1")
	assert.Contains(t, task.Error, "timed out")
}
