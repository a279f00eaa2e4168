package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ==================== ENUMS ====================

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusPaused    TaskStatus = "paused"
)

// Active reports whether the task still occupies a processing slot on the
// backend (pending or running).
func (s TaskStatus) Active() bool {
	return s == TaskStatusPending || s == TaskStatusRunning
}

// Subscribable reports whether the backend may still emit events for a task in
// this status, i.e. whether interest must be re-declared after a reconnect.
func (s TaskStatus) Subscribable() bool {
	return s == TaskStatusPending || s == TaskStatusRunning || s == TaskStatusPaused
}

// Terminal reports whether the task reached an end state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

type TaskKind string

const (
	TaskKindLeadUpload TaskKind = "lead_upload"
	TaskKindExport     TaskKind = "export"
	TaskKindOther      TaskKind = "other"
)

// ==================== METADATA ====================

// TaskMetadata carries the campaign/list context of a bulk job plus record
// counters derived from progress events. ProcessedRecords is always recomputed
// as SuccessfulRecords + FailedRecords when either counter is updated.
type TaskMetadata struct {
	CampaignID        string `json:"campaign_id,omitempty"`
	CampaignName      string `json:"campaign_name,omitempty"`
	ListID            string `json:"list_id,omitempty"`
	ListName          string `json:"list_name,omitempty"`
	TotalRecords      int    `json:"total_records,omitempty"`
	ProcessedRecords  int    `json:"processed_records"`
	SuccessfulRecords int    `json:"successful_records"`
	FailedRecords     int    `json:"failed_records"`
}

func (m TaskMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *TaskMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = TaskMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan TaskMetadata: invalid type")
	}
	return json.Unmarshal(bytes, m)
}

// ==================== ENTITY ====================

// Task is the client-side record of one backend-tracked long-running job.
// ID is generated on our side at registration time and is the correlation id
// for every inbound and outbound message about the job.
type Task struct {
	ID          string        `gorm:"primaryKey;size:64" json:"id"`
	Kind        TaskKind      `gorm:"size:20;not null;default:'other'" json:"kind"`
	Title       string        `gorm:"size:255" json:"title"`
	Description string        `gorm:"type:text" json:"description,omitempty"`
	Progress    float64       `json:"progress"` // 0-100
	Status      TaskStatus    `gorm:"size:20;not null;default:'pending'" json:"status"`
	Error       string        `gorm:"type:text" json:"error,omitempty"`
	Metadata    *TaskMetadata `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	LastEventAt time.Time     `json:"last_event_at"`
}

// Clone returns a copy safe to hand outside the store.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Metadata != nil {
		md := *t.Metadata
		cp.Metadata = &md
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// ==================== SNAPSHOT ====================

// PanelSnapshot is the unit of persistence: the full task collection plus the
// panel's minimized flag, written on every mutation and rehydrated at startup.
type PanelSnapshot struct {
	Tasks     []*Task   `json:"tasks"`
	Minimized bool      `json:"minimized"`
	SavedAt   time.Time `json:"saved_at"`
}

// ==================== CHANGE FEED ====================

type TaskChangeKind string

const (
	TaskAdded   TaskChangeKind = "added"
	TaskUpdated TaskChangeKind = "updated"
	TaskRemoved TaskChangeKind = "removed"
)

// TaskChange is pushed to store subscribers (the dashboard stream) after every
// mutation. Task is nil for removals.
type TaskChange struct {
	Kind   TaskChangeKind `json:"kind"`
	TaskID string         `json:"task_id"`
	Task   *Task          `json:"task,omitempty"`
}

// ==================== NOTIFICATIONS ====================

type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// Toast is the ephemeral user-facing signal that accompanies every significant
// task transition.
type Toast struct {
	Level     ToastLevel `json:"level"`
	TaskID    string     `json:"task_id,omitempty"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}
