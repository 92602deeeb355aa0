package model

import (
	"time"
)

// CouncilMode 轮次的审议模式，创建后不可切换
type CouncilMode string

const (
	CouncilModeFormal CouncilMode = "formal" // 并行回答 -> 互评 -> 主席总结
	CouncilModeChat   CouncilMode = "chat"   // 顺序群聊
)

// IsValid 判断模式是否合法
func (m CouncilMode) IsValid() bool {
	return m == CouncilModeFormal || m == CouncilModeChat
}

// ModelInfo 模型描述（议员或主席）
type ModelInfo struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Session 会话聚合根，独占其下所有轮次
// Rounds 只追加，下标即轮次序号
type Session struct {
	ID         string     `json:"id" gorm:"primaryKey;size:64"`
	Title      string     `json:"title" gorm:"size:255"`
	Rounds     []Round    `json:"rounds" gorm:"serializer:json;type:longtext"`
	IsDeleted  bool       `json:"is_deleted" gorm:"index;default:false"`
	DeletedAt  *time.Time `json:"deleted_at"`
	IsPinned   bool       `json:"is_pinned" gorm:"default:false"`
	PinnedAt   *time.Time `json:"pinned_at"`
	IsShared   bool       `json:"is_shared" gorm:"default:false"`
	ShareToken string     `json:"share_token,omitempty" gorm:"size:64;index"`
	SharedAt   *time.Time `json:"shared_at"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "council_sessions"
}

// CurrentRound 返回最后一轮及其之前的所有轮次
// 没有轮次时返回 nil
func (s *Session) CurrentRound() (*Round, []Round) {
	if len(s.Rounds) == 0 {
		return nil, nil
	}
	last := len(s.Rounds) - 1
	return &s.Rounds[last], s.Rounds[:last]
}

// Round 一次提问与审议
// 非当前模式的字段保持为空
type Round struct {
	Question             string               `json:"question"`
	Mode                 CouncilMode          `json:"mode"`
	SelectedModels       []string             `json:"selected_models"` // nil 表示全部议员
	Status               RoundStatus          `json:"status"`
	Responses            []ModelResponse      `json:"responses"`
	PeerReviews          []PeerReview         `json:"peer_reviews"`
	FinalSynthesis       string               `json:"final_synthesis,omitempty"`
	DisagreementAnalysis []DisagreementRecord `json:"disagreement_analysis"`
	ChatMessages         []ChatMessage        `json:"chat_messages"`
}

// NewRound 创建一个待处理的轮次
func NewRound(question string, mode CouncilMode, selected []string) Round {
	if !mode.IsValid() {
		mode = CouncilModeFormal
	}
	return Round{
		Question:       question,
		Mode:           mode,
		SelectedModels: selected,
		Status:         RoundStatusPending,
	}
}

// ModelResponse 单个议员的回答
// Error 非空时以 Error 为准，忽略 Response
type ModelResponse struct {
	ModelID        string `json:"model_id"`
	ModelName      string `json:"model_name"`
	Response       string `json:"response"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMs *int64 `json:"response_time_ms,omitempty"`
}

// Failed 是否调用失败
func (r ModelResponse) Failed() bool {
	return r.Error != ""
}

// PeerReview 某个议员对其他回答的排名
type PeerReview struct {
	ReviewerModel string    `json:"reviewer_model"`
	Rankings      []Ranking `json:"rankings"`
}

// ChatMessage 群聊中的一条发言
type ChatMessage struct {
	ModelID        string `json:"model_id"`
	ModelName      string `json:"model_name"`
	Content        string `json:"content"`
	ReplyTo        string `json:"reply_to,omitempty"`
	ResponseTimeMs *int64 `json:"response_time_ms,omitempty"`
}

// DisagreementRecord 单个回答的分歧统计，只作为计算视图
type DisagreementRecord struct {
	ModelID           string  `json:"model_id"`
	ModelName         string  `json:"model_name"`
	RanksReceived     []int   `json:"ranks_received"`
	MeanRank          float64 `json:"mean_rank"`
	DisagreementScore float64 `json:"disagreement_score"`
	HasDisagreement   bool    `json:"has_disagreement"`
}

// SessionSummary 会话列表项
type SessionSummary struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Question   string      `json:"question"`
	Status     RoundStatus `json:"status"`
	RoundCount int         `json:"round_count"`
	CreatedAt  time.Time   `json:"created_at"`
	IsPinned   bool        `json:"is_pinned"`
}

// Summary 生成会话摘要：首轮问题 + 末轮状态
func (s *Session) Summary() SessionSummary {
	summary := SessionSummary{
		ID:         s.ID,
		Title:      s.Title,
		Status:     RoundStatusPending,
		RoundCount: len(s.Rounds),
		CreatedAt:  s.CreatedAt,
		IsPinned:   s.IsPinned,
	}
	if len(s.Rounds) > 0 {
		summary.Question = s.Rounds[0].Question
		summary.Status = s.Rounds[len(s.Rounds)-1].Status
	}
	return summary
}
