package eventbus

import "github.com/samueldervishii/llm-council/internal/model"

type RoundEventType string

const (
	RoundEventAdvanced RoundEventType = "RoundAdvanced" // 轮次状态前进
	RoundEventFailed   RoundEventType = "RoundFailed"   // 推进失败（主席失败、持久化失败等）
)

type RoundEvent struct {
	Type       RoundEventType
	SessionID  string
	RoundIndex int
	Mode       model.CouncilMode
	From       model.RoundStatus
	To         model.RoundStatus
	Error      string
}

type RoundEventHandler = Handler[RoundEvent]
type RoundEventBus = Bus[RoundEventType, RoundEvent]

func NewRoundEventBus() *RoundEventBus {
	return NewBus[RoundEventType, RoundEvent]()
}
