package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/leadbridge/backend/internal/core/ports"
	"github.com/leadbridge/backend/internal/domain"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
)

const defaultCleanupGrace = 10 * time.Second

type TaskStoreConfig struct {
	Snapshots ports.SnapshotStore
	Logger    *logger.Logger
	// CleanupGrace is how long completed tasks linger before automatic
	// removal. Zero means the 10 second default.
	CleanupGrace time.Duration
	// StaleAfter enables the staleness watchdog when positive: tasks whose
	// last event is older than this are failed with a timeout reason.
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

// TaskStore holds the authoritative task collection. It is the only component
// allowed to mutate task records; the bridge and the HTTP boundary both write
// through its named operations. A full snapshot is persisted after every
// mutation and rehydrated at startup.
type TaskStore struct {
	mu        sync.RWMutex
	tasks     map[string]*domain.Task
	minimized bool

	snapshots    ports.SnapshotStore
	log          *logger.Logger
	cleanupGrace time.Duration
	staleAfter   time.Duration
	sweepEvery   time.Duration

	subMu   sync.Mutex
	subs    map[int]chan domain.TaskChange
	nextSub int
}

func NewTaskStore(cfg TaskStoreConfig) *TaskStore {
	grace := cfg.CleanupGrace
	if grace <= 0 {
		grace = defaultCleanupGrace
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &TaskStore{
		tasks:        make(map[string]*domain.Task),
		snapshots:    cfg.Snapshots,
		log:          log,
		cleanupGrace: grace,
		staleAfter:   cfg.StaleAfter,
		sweepEvery:   sweep,
		subs:         make(map[int]chan domain.TaskChange),
	}
}

// Rehydrate loads the persisted snapshot into the store. Completed tasks that
// survived a restart get a fresh removal timer so they still clean themselves
// up.
func (s *TaskStore) Rehydrate(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		s.log.Errorw("task_store_rehydrate_failed", "error", err)
		return err
	}
	if snap == nil {
		return nil
	}

	s.mu.Lock()
	s.minimized = snap.Minimized
	for _, t := range snap.Tasks {
		s.tasks[t.ID] = t.Clone()
	}
	count := len(s.tasks)
	s.mu.Unlock()

	for _, t := range snap.Tasks {
		if t.Status == domain.TaskStatusCompleted {
			s.scheduleRemoval(t.ID)
		}
	}

	s.log.Infow("task_store_rehydrated", "tasks", count, "minimized", snap.Minimized)
	return nil
}

// ==================== Mutations ====================

// Add registers a new task. A duplicate id is rejected so the id stays the
// single join key between the store and inbound server messages.
func (s *TaskStore) Add(task *domain.Task) error {
	now := time.Now()

	s.mu.Lock()
	if _, exists := s.tasks[task.ID]; exists {
		s.mu.Unlock()
		s.log.Warnw("task_store_add_duplicate", "task_id", task.ID)
		return ErrTaskExists
	}
	t := task.Clone()
	if t.Status == "" {
		t.Status = domain.TaskStatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.LastEventAt = now
	t.Progress = clampProgress(t.Progress)
	s.tasks[t.ID] = t
	public := t.Clone()
	s.mu.Unlock()

	s.log.Infow("task_store_add_ok", "task_id", t.ID, "kind", t.Kind, "status", t.Status)
	s.persist()
	s.emit(domain.TaskChange{Kind: domain.TaskAdded, TaskID: t.ID, Task: public})
	return nil
}

// UpdateProgress applies a progress tick. Unknown ids are a no-op. A paused
// task receiving progress flips back to running: progress delivery is proof of
// life, so the server evidently resumed it.
func (s *TaskStore) UpdateProgress(id string, progress float64, successful, failed *int) {
	s.mu.Lock()
	t, exists := s.tasks[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	t.Progress = clampProgress(progress)
	if t.Metadata == nil && (successful != nil || failed != nil) {
		t.Metadata = &domain.TaskMetadata{}
	}
	if successful != nil {
		t.Metadata.SuccessfulRecords = *successful
	}
	if failed != nil {
		t.Metadata.FailedRecords = *failed
	}
	if t.Metadata != nil && (successful != nil || failed != nil) {
		t.Metadata.ProcessedRecords = t.Metadata.SuccessfulRecords + t.Metadata.FailedRecords
	}
	if t.Status == domain.TaskStatusPaused {
		t.Status = domain.TaskStatusRunning
	}
	t.LastEventAt = time.Now()
	public := t.Clone()
	s.mu.Unlock()

	s.persist()
	s.emit(domain.TaskChange{Kind: domain.TaskUpdated, TaskID: id, Task: public})
}

// SetStatus overwrites the status without transition validation.
func (s *TaskStore) SetStatus(id string, status domain.TaskStatus) {
	s.mu.Lock()
	t, exists := s.tasks[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	t.Status = status
	t.LastEventAt = time.Now()
	public := t.Clone()
	s.mu.Unlock()

	s.log.Infow("task_store_status_set", "task_id", id, "status", status)
	s.persist()
	s.emit(domain.TaskChange{Kind: domain.TaskUpdated, TaskID: id, Task: public})
}

// Complete forces progress to 100, stamps completedAt and schedules the
// automatic removal after the cleanup grace period.
func (s *TaskStore) Complete(id string) {
	now := time.Now()

	s.mu.Lock()
	t, exists := s.tasks[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	t.Status = domain.TaskStatusCompleted
	t.Progress = 100
	t.CompletedAt = &now
	t.LastEventAt = now
	public := t.Clone()
	s.mu.Unlock()

	s.log.Infow("task_store_completed", "task_id", id)
	s.persist()
	s.emit(domain.TaskChange{Kind: domain.TaskUpdated, TaskID: id, Task: public})
	s.scheduleRemoval(id)
}

// Fail marks the task failed. Failed tasks are not auto-removed; they persist
// until dismissed or swept by ClearCompleted.
func (s *TaskStore) Fail(id, errorMessage string) {
	now := time.Now()

	s.mu.Lock()
	t, exists := s.tasks[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	t.Status = domain.TaskStatusFailed
	t.Error = errorMessage
	t.CompletedAt = &now
	t.LastEventAt = now
	public := t.Clone()
	s.mu.Unlock()

	s.log.Warnw("task_store_failed", "task_id", id, "error", errorMessage)
	s.persist()
	s.emit(domain.TaskChange{Kind: domain.TaskUpdated, TaskID: id, Task: public})
}

// Remove deletes unconditionally. Removing an id that is already gone is
// harmless, which also covers the deferred cleanup firing after a manual
// dismiss.
func (s *TaskStore) Remove(id string) {
	s.mu.Lock()
	_, exists := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()

	if !exists {
		return
	}
	s.log.Infow("task_store_removed", "task_id", id)
	s.persist()
	s.emit(domain.TaskChange{Kind: domain.TaskRemoved, TaskID: id})
}

// ClearCompleted sweeps every task that is not running or pending. Note this
// includes paused tasks, matching the dashboard's observed behavior.
func (s *TaskStore) ClearCompleted() int {
	s.mu.Lock()
	removed := make([]string, 0, len(s.tasks))
	for id, t := range s.tasks {
		if !t.Status.Active() {
			removed = append(removed, id)
			delete(s.tasks, id)
		}
	}
	s.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	s.log.Infow("task_store_cleared", "count", len(removed))
	s.persist()
	for _, id := range removed {
		s.emit(domain.TaskChange{Kind: domain.TaskRemoved, TaskID: id})
	}
	return len(removed)
}

// ToggleMinimized flips the panel visibility flag and returns the new value.
func (s *TaskStore) ToggleMinimized() bool {
	s.mu.Lock()
	s.minimized = !s.minimized
	v := s.minimized
	s.mu.Unlock()

	s.persist()
	return v
}

// ==================== Queries ====================

func (s *TaskStore) Get(id string) (*domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, exists := s.tasks[id]
	if !exists {
		return nil, false
	}
	return t.Clone(), true
}

// List returns all tasks ordered by creation time.
func (s *TaskStore) List() []*domain.Task {
	s.mu.RLock()
	out := make([]*domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *TaskStore) Minimized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minimized
}

// ActiveCount counts running and pending tasks.
func (s *TaskStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tasks {
		if t.Status.Active() {
			n++
		}
	}
	return n
}

func (s *TaskStore) HasActive() bool {
	return s.ActiveCount() > 0
}

// SubscribableIDs returns the ids the bridge must re-subscribe after a
// reconnect: running, pending and paused tasks.
func (s *TaskStore) SubscribableIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tasks))
	for id, t := range s.tasks {
		if t.Status.Subscribable() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ==================== Change feed ====================

// Subscribe returns a buffered change channel and a cancel function. Slow
// consumers drop events rather than blocking mutations.
func (s *TaskStore) Subscribe() (<-chan domain.TaskChange, func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan domain.TaskChange, 64)
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *TaskStore) emit(change domain.TaskChange) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// ==================== Background sweeps ====================

// StartStaleSweep runs the optional watchdog until ctx is cancelled. It is a
// deliberate hardening over the dashboard's stock behavior, where a task whose
// backend went silent stays "running" forever.
func (s *TaskStore) StartStaleSweep(ctx context.Context) {
	if s.staleAfter <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.failStale()
			}
		}
	}()
}

func (s *TaskStore) failStale() {
	cutoff := time.Now().Add(-s.staleAfter)

	s.mu.RLock()
	stale := make([]string, 0)
	for id, t := range s.tasks {
		if t.Status.Subscribable() && t.LastEventAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range stale {
		s.log.Warnw("task_store_stale", "task_id", id, "threshold", s.staleAfter)
		s.Fail(id, "no progress received from the server, the task timed out")
	}
}

func (s *TaskStore) scheduleRemoval(id string) {
	time.AfterFunc(s.cleanupGrace, func() {
		s.Remove(id)
	})
}

// Flush writes the current snapshot out unconditionally. The store already
// persists after every mutation; shutdown calls this once more so the saved_at
// stamp reflects a clean exit.
func (s *TaskStore) Flush() {
	s.persist()
}

func (s *TaskStore) persist() {
	if s.snapshots == nil {
		return
	}

	s.mu.RLock()
	snap := &domain.PanelSnapshot{
		Tasks:     make([]*domain.Task, 0, len(s.tasks)),
		Minimized: s.minimized,
		SavedAt:   time.Now(),
	}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })
	if err := s.snapshots.Save(context.Background(), snap); err != nil {
		s.log.Errorw("task_store_persist_failed", "error", err)
	}
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
