package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

// ParticipationEventType names what happened to a participation.
type ParticipationEventType string

const (
	// EventStateChanged fires on any committed state transition.
	EventStateChanged ParticipationEventType = "state_changed"

	// EventAwaitsDisposition fires when a request lands in the requested
	// state and a responsible should review it.
	EventAwaitsDisposition ParticipationEventType = "awaits_disposition"

	// EventCustomized fires when a participation's individual times were
	// changed without a state transition.
	EventCustomized ParticipationEventType = "customized"

	// EventFinished fires once when a participation's shift has ended.
	EventFinished ParticipationEventType = "finished"
)

// ParticipationEvent is published after a successful commit. Subscribers run
// outside the lock and transaction boundary; their failures never roll back
// the state transition.
type ParticipationEvent struct {
	Type          ParticipationEventType
	Participation model.Participation
	Shift         model.Shift
	Participant   model.Participant
	PreviousState model.ParticipationState
	ActingUserID  string
}

// Bus is the in-process post-commit event channel between the engine and its
// notification collaborators.
type Bus struct {
	mu          sync.RWMutex
	subscribers []func(context.Context, ParticipationEvent)
	logger      *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a handler for all future events.
func (b *Bus) Subscribe(fn func(context.Context, ParticipationEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Publish delivers events to every subscriber, fire-and-forget. A panicking
// subscriber is logged and skipped.
func (b *Bus) Publish(ctx context.Context, events ...ParticipationEvent) {
	b.mu.RLock()
	subscribers := append([]func(context.Context, ParticipationEvent){}, b.subscribers...)
	b.mu.RUnlock()
	for _, event := range events {
		for _, subscriber := range subscribers {
			b.deliver(ctx, subscriber, event)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, subscriber func(context.Context, ParticipationEvent), event ParticipationEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("participation event subscriber panicked",
				zap.Any("panic", r),
				zap.String("event_type", string(event.Type)),
				zap.String("participation_id", event.Participation.ID))
		}
	}()
	subscriber(ctx, event)
}
