package services

import (
	"sync"
	"time"

	"github.com/leadbridge/backend/internal/domain"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
)

// ToastCenter delivers the ephemeral notifications that accompany task
// transitions. Every toast is logged and fanned out to stream subscribers
// (dashboard clients connected to /ws/tasks).
type ToastCenter struct {
	log *logger.Logger

	mu      sync.Mutex
	subs    map[int]chan domain.Toast
	nextSub int
}

func NewToastCenter(log *logger.Logger) *ToastCenter {
	if log == nil {
		log = logger.NewNop()
	}
	return &ToastCenter{
		log:  log,
		subs: make(map[int]chan domain.Toast),
	}
}

func (c *ToastCenter) Notify(level domain.ToastLevel, taskID, message string) {
	toast := domain.Toast{
		Level:     level,
		TaskID:    taskID,
		Message:   message,
		CreatedAt: time.Now(),
	}

	switch level {
	case domain.ToastError, domain.ToastWarning:
		c.log.Warnw("toast", "level", level, "task_id", taskID, "message", message)
	default:
		c.log.Infow("toast", "level", level, "task_id", taskID, "message", message)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- toast:
		default:
		}
	}
}

// Subscribe returns a buffered toast channel and a cancel function.
func (c *ToastCenter) Subscribe() (<-chan domain.Toast, func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan domain.Toast, 16)
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}
