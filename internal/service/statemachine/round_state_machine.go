package statemachine

import (
	"fmt"

	"github.com/samueldervishii/llm-council/internal/model"
	"k8s.io/klog/v2"
)

// RoundTransition 轮次状态迁移
type RoundTransition struct {
	Mode model.CouncilMode
	From model.RoundStatus
	To   model.RoundStatus
}

// RoundStateMachine 轮次状态机
// 状态只能前进，不能回退或跳步
type RoundStateMachine struct {
	allowedTransitions map[RoundTransition]bool
}

// NewRoundStateMachine 创建轮次状态机
func NewRoundStateMachine() *RoundStateMachine {
	sm := &RoundStateMachine{
		allowedTransitions: make(map[RoundTransition]bool),
	}

	// formal: pending -> responses_complete -> reviews_complete -> synthesized
	// chat:   pending -> chat_complete
	transitions := []RoundTransition{
		{model.CouncilModeFormal, model.RoundStatusPending, model.RoundStatusResponsesComplete},
		{model.CouncilModeFormal, model.RoundStatusResponsesComplete, model.RoundStatusReviewsComplete},
		{model.CouncilModeFormal, model.RoundStatusReviewsComplete, model.RoundStatusSynthesized},

		{model.CouncilModeChat, model.RoundStatusPending, model.RoundStatusChatComplete},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *RoundStateMachine) CanTransition(mode model.CouncilMode, from, to model.RoundStatus) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[RoundTransition{Mode: mode, From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *RoundStateMachine) ValidateTransition(mode model.CouncilMode, from, to model.RoundStatus) error {
	if !sm.CanTransition(mode, from, to) {
		return &InvalidRoundTransitionError{
			Mode: string(mode),
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 校验并推进轮次状态（带日志）
// 会话维度的日志由 RoundEvent 订阅者输出
func (sm *RoundStateMachine) Transition(round *model.Round, to model.RoundStatus) error {
	from := round.Status
	if err := sm.ValidateTransition(round.Mode, from, to); err != nil {
		klog.V(6).Infof("轮次状态迁移被拒绝: mode=%s, %s -> %s, error=%v", round.Mode, from, to, err)
		return err
	}

	round.Status = to
	klog.V(6).Infof("轮次状态迁移成功: mode=%s, %s -> %s", round.Mode, from, to)
	return nil
}

// InvalidRoundTransitionError 无效的轮次状态迁移
type InvalidRoundTransitionError struct {
	Mode string
	From string
	To   string
}

func (e *InvalidRoundTransitionError) Error() string {
	return fmt.Sprintf("invalid %s round transition: %s -> %s", e.Mode, e.From, e.To)
}

// NextStatus 返回当前模式下的下一个状态，已完成时返回 false
func NextStatus(mode model.CouncilMode, status model.RoundStatus) (model.RoundStatus, bool) {
	switch mode {
	case model.CouncilModeChat:
		if status == model.RoundStatusPending {
			return model.RoundStatusChatComplete, true
		}
	default:
		switch status {
		case model.RoundStatusPending:
			return model.RoundStatusResponsesComplete, true
		case model.RoundStatusResponsesComplete:
			return model.RoundStatusReviewsComplete, true
		case model.RoundStatusReviewsComplete:
			return model.RoundStatusSynthesized, true
		}
	}
	return "", false
}
