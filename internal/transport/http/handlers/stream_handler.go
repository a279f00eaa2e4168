package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/leadbridge/backend/internal/core/services"
	"github.com/leadbridge/backend/internal/domain"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
)

// StreamHandler pushes live task changes and toasts to dashboard clients over
// a WebSocket, so the panel renders without polling.
type StreamHandler struct {
	store  *services.TaskStore
	toasts *services.ToastCenter
	logger *logger.Logger
}

func NewStreamHandler(store *services.TaskStore, toasts *services.ToastCenter, logger *logger.Logger) *StreamHandler {
	return &StreamHandler{store: store, toasts: toasts, logger: logger}
}

type streamFrame struct {
	Type   string             `json:"type"` // snapshot, task or toast
	Tasks  []*domain.Task     `json:"tasks,omitempty"`
	Change *domain.TaskChange `json:"change,omitempty"`
	Toast  *domain.Toast      `json:"toast,omitempty"`
}

func (h *StreamHandler) Handle(c *websocket.Conn) {
	changes, cancelChanges := h.store.Subscribe()
	toasts, cancelToasts := h.toasts.Subscribe()
	defer cancelChanges()
	defer cancelToasts()

	h.logger.Infow("stream_client_connected", "remote", c.RemoteAddr().String())

	// Initial state so the client does not have to merge a REST snapshot with
	// the live feed.
	if err := c.WriteJSON(streamFrame{Type: "snapshot", Tasks: h.store.List()}); err != nil {
		c.Close()
		return
	}

	// Drain the client side; its only job is to signal disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			h.logger.Infow("stream_client_disconnected", "remote", c.RemoteAddr().String())
			c.Close()
			return
		case change, ok := <-changes:
			if !ok {
				c.Close()
				return
			}
			if err := c.WriteJSON(streamFrame{Type: "task", Change: &change}); err != nil {
				c.Close()
				return
			}
		case toast, ok := <-toasts:
			if !ok {
				c.Close()
				return
			}
			if err := c.WriteJSON(streamFrame{Type: "toast", Toast: &toast}); err != nil {
				c.Close()
				return
			}
		}
	}
}
