package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/leadbridge/backend/internal/core/ports"
	"github.com/leadbridge/backend/internal/domain"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
)

type BridgeConfig struct {
	Store     *TaskStore
	Transport ports.BridgeTransport
	Notifier  ports.Notifier
	Intents   *IntentBus
	Logger    *logger.Logger
}

// Bridge translates between the task store and the job runner connection.
// Inbound events are demultiplexed by processId into store mutations; panel
// intents become outbound commands. On every (re)connect it re-declares
// interest in all still-active tasks, because the backend keeps no per-client
// interest across a dropped connection.
//
// A failed task is terminal for that task only; nothing here retries or
// affects sibling tasks.
type Bridge struct {
	store     *TaskStore
	transport ports.BridgeTransport
	notifier  ports.Notifier
	intents   *IntentBus
	log       *logger.Logger

	seqMu   sync.Mutex
	lastSeq map[string]uint64
}

func NewBridge(cfg BridgeConfig) *Bridge {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Bridge{
		store:     cfg.Store,
		transport: cfg.Transport,
		notifier:  cfg.Notifier,
		intents:   cfg.Intents,
		log:       log,
		lastSeq:   make(map[string]uint64),
	}
}

// Start registers all handlers, connects the transport and begins consuming
// panel intents. Handlers must be attached before the transport starts so the
// first connect event already triggers resubscription.
func (b *Bridge) Start(ctx context.Context) error {
	b.transport.OnConnect(b.handleConnect)
	b.transport.OnEvent(domain.EventUploadProgress, b.handleProgress)
	b.transport.OnEvent(domain.EventUploadComplete, b.handleComplete)
	b.transport.OnEvent(domain.EventUploadError, b.handleError)
	b.transport.OnEvent(domain.EventUploadCancelled, b.handleCancelled)
	b.transport.OnEvent(domain.EventUploadPaused, b.handlePaused)
	b.transport.OnEvent(domain.EventUploadResumed, b.handleResumed)
	b.transport.OnEvent(domain.EventTaskNotFound, b.handleNotFound)

	if b.intents != nil {
		go b.consumeIntents(ctx)
	}

	if err := b.transport.Start(ctx); err != nil {
		return fmt.Errorf("bridge: transport start: %w", err)
	}
	b.log.Infow("bridge_started")
	return nil
}

// Close tears the transport down. All handlers die with it, so a restarted
// bridge never double-handles events.
func (b *Bridge) Close() error {
	return b.transport.Close()
}

// ==================== Job initiation ====================

type StartUploadInput struct {
	ProcessID    string // optional, generated when empty
	Title        string
	Description  string
	Leads        []map[string]interface{}
	ListID       string
	ListName     string
	CampaignID   string
	CampaignName string
}

// StartUpload registers a lead-upload task and sends the start command with
// the task id embedded as the correlation id.
func (b *Bridge) StartUpload(in StartUploadInput) (*domain.Task, error) {
	id := in.ProcessID
	if id == "" {
		id = uuid.New().String()
	}

	task := &domain.Task{
		ID:          id,
		Kind:        domain.TaskKindLeadUpload,
		Title:       in.Title,
		Description: in.Description,
		Status:      domain.TaskStatusRunning,
		Metadata: &domain.TaskMetadata{
			CampaignID:   in.CampaignID,
			CampaignName: in.CampaignName,
			ListID:       in.ListID,
			ListName:     in.ListName,
			TotalRecords: len(in.Leads),
		},
	}
	if task.Title == "" {
		task.Title = fmt.Sprintf("Lead upload (%d records)", len(in.Leads))
	}

	if err := b.store.Add(task); err != nil {
		return nil, err
	}

	cmd := domain.StartCommand{
		Leads:      in.Leads,
		ListID:     in.ListID,
		CampaignID: in.CampaignID,
		ProcessID:  id,
	}
	if err := b.transport.Send(domain.CommandUploadStart, cmd); err != nil {
		// The server never saw the start, so keeping the task would show a
		// phantom running upload and block a retry with the same id.
		b.store.Remove(id)
		b.log.Errorw("bridge_start_send_failed", "task_id", id, "error", err)
		return nil, fmt.Errorf("bridge: send start: %w", err)
	}

	b.log.Infow("bridge_upload_started", "task_id", id, "leads", len(in.Leads), "list_id", in.ListID, "campaign_id", in.CampaignID)
	return task, nil
}

// ==================== Panel intents ====================

func (b *Bridge) consumeIntents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case intent := <-b.intents.C():
			b.dispatchIntent(intent)
		}
	}
}

// dispatchIntent forwards a control request to the backend. The store is not
// touched here: the task only changes status when the confirming event
// arrives.
func (b *Bridge) dispatchIntent(intent Intent) {
	var command string
	switch intent.Kind {
	case IntentCancel:
		command = domain.CommandUploadCancel
	case IntentPause:
		command = domain.CommandUploadPause
	case IntentResume:
		command = domain.CommandUploadResume
	default:
		b.log.Warnw("bridge_unknown_intent", "kind", intent.Kind, "task_id", intent.TaskID)
		return
	}

	if err := b.transport.Send(command, domain.ControlCommand{ProcessID: intent.TaskID}); err != nil {
		b.log.Errorw("bridge_intent_send_failed", "command", command, "task_id", intent.TaskID, "error", err)
		return
	}
	b.log.Infow("bridge_intent_sent", "command", command, "task_id", intent.TaskID)
}

// ==================== Inbound events ====================

func (b *Bridge) handleConnect() {
	b.pruneSeq()
	ids := b.store.SubscribableIDs()
	b.log.Infow("bridge_connected", "resubscribing", len(ids))
	for _, id := range ids {
		if err := b.transport.Send(domain.CommandTaskSubscribe, id); err != nil {
			b.log.Errorw("bridge_resubscribe_failed", "task_id", id, "error", err)
		}
	}
}

func (b *Bridge) handleProgress(data json.RawMessage) {
	var ev domain.ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.ProcessID == "" {
		b.log.Warnw("bridge_progress_malformed", "error", err)
		return
	}
	if !b.fresh(ev.ProcessID, ev.Seq) {
		b.log.Debugw("bridge_progress_stale", "task_id", ev.ProcessID, "seq", ev.Seq)
		return
	}
	b.store.UpdateProgress(ev.ProcessID, ev.Percentage, &ev.Successful, &ev.Errors)
}

func (b *Bridge) handleComplete(data json.RawMessage) {
	var ev domain.CompleteEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.ProcessID == "" {
		b.log.Warnw("bridge_complete_malformed", "error", err)
		return
	}
	if !b.fresh(ev.ProcessID, ev.Seq) {
		return
	}
	b.store.UpdateProgress(ev.ProcessID, 100, &ev.Successful, &ev.Errors)
	b.store.Complete(ev.ProcessID)
	b.notify(domain.ToastSuccess, ev.ProcessID,
		fmt.Sprintf("Upload complete: %d loaded, %d failed", ev.Successful, ev.Errors))
}

func (b *Bridge) handleError(data json.RawMessage) {
	var ev domain.ErrorEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.ProcessID == "" {
		b.log.Warnw("bridge_error_malformed", "error", err)
		return
	}
	if !b.fresh(ev.ProcessID, ev.Seq) {
		return
	}
	msg := ev.Message
	if msg == "" {
		msg = "Upload failed"
	}
	b.store.Fail(ev.ProcessID, msg)
	b.notify(domain.ToastError, ev.ProcessID, msg)
}

// handleCancelled treats a server-confirmed cancellation like an error: the
// task ends up failed with a cancellation message.
func (b *Bridge) handleCancelled(data json.RawMessage) {
	var ev domain.ErrorEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.ProcessID == "" {
		b.log.Warnw("bridge_cancelled_malformed", "error", err)
		return
	}
	if !b.fresh(ev.ProcessID, ev.Seq) {
		return
	}
	msg := ev.Message
	if msg == "" {
		msg = "Upload cancelled"
	}
	b.store.Fail(ev.ProcessID, msg)
	b.notify(domain.ToastWarning, ev.ProcessID, msg)
}

func (b *Bridge) handlePaused(data json.RawMessage) {
	var ev domain.LifecycleEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.ProcessID == "" {
		return
	}
	if !b.fresh(ev.ProcessID, ev.Seq) {
		return
	}
	b.store.SetStatus(ev.ProcessID, domain.TaskStatusPaused)
	b.notify(domain.ToastInfo, ev.ProcessID, "Upload paused")
}

func (b *Bridge) handleResumed(data json.RawMessage) {
	var ev domain.LifecycleEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.ProcessID == "" {
		return
	}
	if !b.fresh(ev.ProcessID, ev.Seq) {
		return
	}
	b.store.SetStatus(ev.ProcessID, domain.TaskStatusRunning)
	b.notify(domain.ToastInfo, ev.ProcessID, "Upload resumed")
}

// handleNotFound fires when the backend lost track of a task, typically after
// its own restart.
func (b *Bridge) handleNotFound(data json.RawMessage) {
	var ev domain.LifecycleEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.ProcessID == "" {
		return
	}
	msg := "The server no longer tracks this task, it may have been lost to a server restart"
	b.store.Fail(ev.ProcessID, msg)
	b.notify(domain.ToastError, ev.ProcessID, msg)
}

func (b *Bridge) notify(level domain.ToastLevel, taskID, message string) {
	if b.notifier == nil {
		return
	}
	b.notifier.Notify(level, taskID, message)
}

// fresh applies the per-task ordering guard. Events without a sequence number
// (seq 0) are always applied; sequenced events must be strictly newer than the
// last applied one.
func (b *Bridge) fresh(taskID string, seq uint64) bool {
	if seq == 0 {
		return true
	}
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	if seq <= b.lastSeq[taskID] {
		return false
	}
	b.lastSeq[taskID] = seq
	return true
}

// pruneSeq drops ordering state for tasks that no longer exist. Running it on
// reconnect keeps the guard alive for any task still in the store, including
// completed ones awaiting cleanup.
func (b *Bridge) pruneSeq() {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	for id := range b.lastSeq {
		if _, ok := b.store.Get(id); !ok {
			delete(b.lastSeq, id)
		}
	}
}
