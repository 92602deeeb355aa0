package subscriber

import (
	"context"

	"github.com/samueldervishii/llm-council/internal/eventbus"
	"k8s.io/klog/v2"
)

type SessionEventSubscriber struct{}

func NewSessionEventSubscriber() *SessionEventSubscriber {
	return &SessionEventSubscriber{}
}

func (s *SessionEventSubscriber) Register(bus *eventbus.SessionEventBus) {
	if bus == nil {
		return
	}
	for _, t := range []eventbus.SessionEventType{
		eventbus.SessionEventCreated,
		eventbus.SessionEventContinued,
		eventbus.SessionEventDeleted,
		eventbus.SessionEventRestored,
		eventbus.SessionEventShared,
		eventbus.SessionEventUnshared,
	} {
		bus.Subscribe(t, s.handleSessionEvent)
	}
}

func (s *SessionEventSubscriber) handleSessionEvent(ctx context.Context, event eventbus.SessionEvent) error {
	klog.V(6).Infof("会话事件: type=%s, sessionID=%s, rounds=%d", event.Type, event.SessionID, event.RoundCount)
	return nil
}
