package ports

import (
	"context"
	"encoding/json"

	"github.com/leadbridge/backend/internal/domain"
)

// SnapshotStore persists the full panel state. The task store writes a
// snapshot after every mutation and loads one at startup.
type SnapshotStore interface {
	Save(ctx context.Context, snap *domain.PanelSnapshot) error
	Load(ctx context.Context) (*domain.PanelSnapshot, error)
}

// Notifier delivers user-facing toast notifications.
type Notifier interface {
	Notify(level domain.ToastLevel, taskID, message string)
}

// BridgeTransport is the duplex event channel to the backend job runner.
// Handlers must be registered before Start; OnConnect fires on the initial
// connection and again after every reconnect.
type BridgeTransport interface {
	OnEvent(event string, fn func(data json.RawMessage))
	OnConnect(fn func())
	Start(ctx context.Context) error
	Send(event string, payload interface{}) error
	Close() error
}
