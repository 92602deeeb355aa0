package subscriber

import (
	"context"
	"sync/atomic"

	"github.com/samueldervishii/llm-council/internal/eventbus"
	"github.com/samueldervishii/llm-council/internal/model"
	"k8s.io/klog/v2"
)

// RoundStats 轮次事件计数
type RoundStats struct {
	Transitions     int64 `json:"transitions"`
	CompletedRounds int64 `json:"completed_rounds"`
	Failures        int64 `json:"failures"`
}

type RoundEventSubscriber struct {
	transitions atomic.Int64
	completed   atomic.Int64
	failures    atomic.Int64
}

func NewRoundEventSubscriber() *RoundEventSubscriber {
	return &RoundEventSubscriber{}
}

func (s *RoundEventSubscriber) Register(bus *eventbus.RoundEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.RoundEventAdvanced, s.handleRoundAdvanced)
	bus.Subscribe(eventbus.RoundEventFailed, s.handleRoundFailed)
}

// Stats 返回当前计数快照
func (s *RoundEventSubscriber) Stats() RoundStats {
	return RoundStats{
		Transitions:     s.transitions.Load(),
		CompletedRounds: s.completed.Load(),
		Failures:        s.failures.Load(),
	}
}

func (s *RoundEventSubscriber) handleRoundAdvanced(ctx context.Context, event eventbus.RoundEvent) error {
	s.transitions.Add(1)
	if event.To == model.RoundStatusSynthesized || event.To == model.RoundStatusChatComplete {
		s.completed.Add(1)
	}
	klog.V(6).Infof("轮次状态前进: sessionID=%s, round=%d, mode=%s, %s -> %s",
		event.SessionID, event.RoundIndex, event.Mode, event.From, event.To)
	return nil
}

func (s *RoundEventSubscriber) handleRoundFailed(ctx context.Context, event eventbus.RoundEvent) error {
	s.failures.Add(1)
	klog.Warningf("轮次推进失败: sessionID=%s, round=%d, mode=%s, status=%s, error=%s",
		event.SessionID, event.RoundIndex, event.Mode, event.From, event.Error)
	return nil
}
