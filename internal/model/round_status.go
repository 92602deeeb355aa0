package model

// RoundStatus 轮次状态
// formal: pending -> responses_complete -> reviews_complete -> synthesized
// chat:   pending -> chat_complete
type RoundStatus string

const (
	RoundStatusPending           RoundStatus = "pending"
	RoundStatusResponsesComplete RoundStatus = "responses_complete"
	RoundStatusReviewsComplete   RoundStatus = "reviews_complete"
	RoundStatusSynthesized       RoundStatus = "synthesized"
	RoundStatusChatComplete      RoundStatus = "chat_complete"
)

// IsComplete 轮次是否已走完（可以追加新一轮）
func (s RoundStatus) IsComplete() bool {
	return s == RoundStatusSynthesized || s == RoundStatusChatComplete
}
