package services

import "github.com/leadbridge/backend/internal/infrastructure/logger"

type IntentKind string

const (
	IntentCancel IntentKind = "cancel"
	IntentPause  IntentKind = "pause"
	IntentResume IntentKind = "resume"
)

// Intent is a control request produced by the panel boundary. The panel never
// mutates the store or talks to the transport directly; it publishes an intent
// and the bridge turns it into an outbound command. The store is only updated
// once the backend confirms with an event.
type Intent struct {
	Kind   IntentKind
	TaskID string
}

// IntentBus is the typed channel between the intent-producing boundary and the
// bridge. It replaces ambient pub/sub so the producer/consumer contract is
// visible in the type system.
type IntentBus struct {
	ch  chan Intent
	log *logger.Logger
}

func NewIntentBus(log *logger.Logger) *IntentBus {
	if log == nil {
		log = logger.NewNop()
	}
	return &IntentBus{
		ch:  make(chan Intent, 64),
		log: log,
	}
}

// Publish enqueues an intent. If the bridge has fallen far enough behind to
// fill the buffer the intent is dropped and logged, mirroring how a lost UI
// event behaves: the user simply clicks again.
func (b *IntentBus) Publish(intent Intent) {
	select {
	case b.ch <- intent:
	default:
		b.log.Warnw("intent_dropped", "kind", intent.Kind, "task_id", intent.TaskID)
	}
}

func (b *IntentBus) C() <-chan Intent {
	return b.ch
}
