package domain

import "encoding/json"

// Wire contract with the backend job runner. Every task-scoped message carries
// the task id as processId; upstream messages may additionally carry a per-task
// monotonically increasing seq used to drop late, out-of-order deliveries.

// Inbound event names.
const (
	EventUploadProgress  = "upload:leads:progress"
	EventUploadComplete  = "upload:leads:complete"
	EventUploadError     = "upload:leads:error"
	EventUploadCancelled = "upload:leads:cancelled"
	EventUploadPaused    = "upload:leads:paused"
	EventUploadResumed   = "upload:leads:resumed"
	EventTaskNotFound    = "task:not_found"
)

// Outbound command names.
const (
	CommandUploadStart   = "upload:leads:start"
	CommandUploadCancel  = "upload:leads:cancel"
	CommandUploadPause   = "upload:leads:pause"
	CommandUploadResume  = "upload:leads:resume"
	CommandTaskSubscribe = "task:subscribe"
)

// Envelope frames every message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ==================== INBOUND PAYLOADS ====================

type ProgressEvent struct {
	ProcessID  string  `json:"processId"`
	Percentage float64 `json:"percentage"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Errors     int     `json:"errors"`
	Seq        uint64  `json:"seq,omitempty"`
}

type CompleteEvent struct {
	ProcessID  string `json:"processId"`
	Successful int    `json:"successful"`
	Errors     int    `json:"errors"`
	Seq        uint64 `json:"seq,omitempty"`
}

// ErrorEvent is shared by upload:leads:error and upload:leads:cancelled; both
// carry an optional human-readable message.
type ErrorEvent struct {
	ProcessID string `json:"processId"`
	Message   string `json:"message,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
}

// LifecycleEvent covers paused, resumed and task:not_found.
type LifecycleEvent struct {
	ProcessID string `json:"processId"`
	Seq       uint64 `json:"seq,omitempty"`
}

// ==================== OUTBOUND PAYLOADS ====================

type StartCommand struct {
	Leads      []map[string]interface{} `json:"leads"`
	ListID     string                   `json:"list_id"`
	CampaignID string                   `json:"campaign_id"`
	ProcessID  string                   `json:"processId"`
}

type ControlCommand struct {
	ProcessID string `json:"processId"`
}
