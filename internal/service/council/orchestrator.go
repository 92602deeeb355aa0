package council

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/pkg/llm"
	"github.com/samueldervishii/llm-council/internal/service/statemachine"
)

var (
	// ErrResponsesRequired 还没有收集回答
	ErrResponsesRequired = errors.New("must collect responses first")
	// ErrReviewsRequired 还没有收集评审
	ErrReviewsRequired = errors.New("must collect reviews first")
	// ErrModeMismatch 操作与轮次模式不符
	ErrModeMismatch = errors.New("operation not available for this round mode")
	// ErrSynthesisFailed 主席调用失败
	ErrSynthesisFailed = errors.New("synthesis failed")
)

// Settings 编排参数
type Settings struct {
	ReviewTemperature  float64
	SynthesisMaxTokens int
	ChatTurns          int
}

// DefaultSettings 默认参数
func DefaultSettings() Settings {
	return Settings{
		ReviewTemperature:  0.3,
		SynthesisMaxTokens: 4096,
		ChatTurns:          1,
	}
}

// StepResult 一次推进操作的结果
// Advanced 为 false 表示已经越过该阶段，本次什么都没做
type StepResult struct {
	Advanced bool
	From     model.RoundStatus
	To       model.RoundStatus
	Message  string
}

// StepFunc RunAll 每完成一次状态迁移后回调，用于持久化
type StepFunc func(from, to model.RoundStatus) error

// Orchestrator 驱动单个轮次走完审议流程
// 同一轮次的操作由调用方保证串行
type Orchestrator struct {
	invoker  *Invoker
	roster   Roster
	settings Settings
	sm       *statemachine.RoundStateMachine
}

// NewOrchestrator 创建编排器
func NewOrchestrator(client llm.ChatCompleter, roster Roster, settings Settings) *Orchestrator {
	if settings.ChatTurns <= 0 {
		settings.ChatTurns = 1
	}
	return &Orchestrator{
		invoker:  NewInvoker(client),
		roster:   roster,
		settings: settings,
		sm:       statemachine.NewRoundStateMachine(),
	}
}

// Roster 当前名单
func (o *Orchestrator) Roster() Roster {
	return o.roster
}

func (o *Orchestrator) advance(round *model.Round, to model.RoundStatus, message string) (StepResult, error) {
	from := round.Status
	if err := o.sm.Transition(round, to); err != nil {
		return StepResult{}, err
	}
	return StepResult{Advanced: true, From: from, To: to, Message: message}, nil
}

func unchanged(round *model.Round, message string) StepResult {
	return StepResult{From: round.Status, To: round.Status, Message: message}
}

// CollectResponses 并发收集议员回答：pending -> responses_complete
func (o *Orchestrator) CollectResponses(ctx context.Context, round *model.Round, previous []model.Round) (StepResult, error) {
	if round.Mode != model.CouncilModeFormal {
		return StepResult{}, ErrModeMismatch
	}
	if round.Status != model.RoundStatusPending {
		return unchanged(round, "Responses already collected for this round"), nil
	}

	models := o.roster.ActiveCouncil(round.SelectedModels)
	klog.V(6).Infof("开始收集议员回答: models=%d, previousRounds=%d", len(models), len(previous))

	results := o.invoker.Broadcast(ctx, models,
		BuildQuestionWithContext(round.Question, previous),
		llm.WithSystemPrompt(CouncilSystemPrompt(previous)),
	)
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	round.Responses = ToModelResponses(results)
	return o.advance(round, model.RoundStatusResponsesComplete,
		"All council responses collected. Call /api/sessions/{id}/reviews for peer reviews.")
}

// CollectReviews 议员互评并计算分歧：responses_complete -> reviews_complete
// 有效回答不足两个时跳过评审直接推进
func (o *Orchestrator) CollectReviews(ctx context.Context, round *model.Round, previous []model.Round) (StepResult, error) {
	if round.Mode != model.CouncilModeFormal {
		return StepResult{}, ErrModeMismatch
	}
	switch round.Status {
	case model.RoundStatusPending:
		return StepResult{}, ErrResponsesRequired
	case model.RoundStatusReviewsComplete, model.RoundStatusSynthesized:
		return unchanged(round, "Reviews already collected for this round"), nil
	}

	valid := ValidResponses(round.Responses)
	if len(valid) < 2 {
		klog.V(6).Infof("有效回答不足，跳过评审: valid=%d", len(valid))
		round.PeerReviews = []model.PeerReview{}
		round.DisagreementAnalysis = []model.DisagreementRecord{}
		return o.advance(round, model.RoundStatusReviewsComplete, "Not enough valid responses for peer review")
	}

	reviewers := o.roster.ActiveCouncil(round.SelectedModels)
	calls := make([]Call, 0, len(reviewers))
	for _, reviewer := range reviewers {
		calls = append(calls, Call{
			Model:   reviewer,
			Prompt:  BuildReviewPrompt(round.Question, valid, reviewer.ID, previous),
			Options: []llm.Option{llm.WithTemperature(o.settings.ReviewTemperature)},
		})
	}
	results := o.invoker.InvokeAll(ctx, calls)
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	reviews := make([]model.PeerReview, 0, len(results))
	for _, r := range results {
		reviews = append(reviews, ToPeerReview(r))
	}

	round.PeerReviews = reviews
	round.DisagreementAnalysis = AnalyzeDisagreement(round.Responses, reviews)
	return o.advance(round, model.RoundStatusReviewsComplete,
		"Peer reviews complete. Call /api/sessions/{id}/synthesize for final answer.")
}

// Synthesize 主席给出最终结论：reviews_complete -> synthesized
// 主席调用失败直接返回错误，轮次保持原状态
func (o *Orchestrator) Synthesize(ctx context.Context, round *model.Round, previous []model.Round) (StepResult, error) {
	if round.Mode != model.CouncilModeFormal {
		return StepResult{}, ErrModeMismatch
	}
	switch round.Status {
	case model.RoundStatusSynthesized:
		return unchanged(round, "Already synthesized for this round"), nil
	case model.RoundStatusPending:
		return StepResult{}, ErrResponsesRequired
	case model.RoundStatusResponsesComplete:
		return StepResult{}, ErrReviewsRequired
	}

	chairman := o.roster.Chairman
	prompt := BuildSynthesisPrompt(round.Question, ValidResponses(round.Responses),
		BuildReviewsText(round.PeerReviews), chairman.Name, previous)
	klog.V(6).Infof("开始主席总结: chairman=%s, promptLen=%d", chairman.ID, len(prompt))

	result := o.invoker.Invoke(ctx, Call{
		Model:  chairman,
		Prompt: prompt,
		Options: []llm.Option{
			llm.WithSystemPrompt(ChairmanSystem),
			llm.WithMaxTokens(o.settings.SynthesisMaxTokens),
		},
	})
	if result.Err != nil {
		klog.Errorf("主席总结失败: chairman=%s, error=%v", chairman.ID, result.Err)
		return StepResult{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, result.Err)
	}

	round.FinalSynthesis = result.Content
	return o.advance(round, model.RoundStatusSynthesized, "Synthesis complete!")
}

// RunChat 顺序群聊：pending -> chat_complete
func (o *Orchestrator) RunChat(ctx context.Context, round *model.Round, previous []model.Round) (StepResult, error) {
	if round.Mode != model.CouncilModeChat {
		return StepResult{}, ErrModeMismatch
	}
	if round.Status != model.RoundStatusPending {
		return unchanged(round, "Group chat already complete for this round"), nil
	}

	participants := o.roster.ChatParticipants(round.SelectedModels)
	klog.V(6).Infof("开始群聊: participants=%d, turns=%d", len(participants), o.settings.ChatTurns)

	messages := o.runGroupChat(ctx, round.Question, participants, previous, o.settings.ChatTurns)
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	round.ChatMessages = messages
	return o.advance(round, model.RoundStatusChatComplete, "Group chat complete!")
}

type phaseFunc func(context.Context, *model.Round, []model.Round) (StepResult, error)

// stepTo 推进到目标状态的操作
func (o *Orchestrator) stepTo(to model.RoundStatus) phaseFunc {
	switch to {
	case model.RoundStatusResponsesComplete:
		return o.CollectResponses
	case model.RoundStatusReviewsComplete:
		return o.CollectReviews
	case model.RoundStatusSynthesized:
		return o.Synthesize
	case model.RoundStatusChatComplete:
		return o.RunChat
	}
	return nil
}

// RunAll 从当前状态继续执行剩余阶段
// 每次迁移后调用 onStep；中途失败时已完成的阶段保留
func (o *Orchestrator) RunAll(ctx context.Context, round *model.Round, previous []model.Round, onStep StepFunc) (StepResult, error) {
	start := round.Status

	for {
		next, ok := statemachine.NextStatus(round.Mode, round.Status)
		if !ok {
			break
		}
		step := o.stepTo(next)
		if step == nil {
			break
		}
		res, err := step(ctx, round, previous)
		if err != nil {
			return StepResult{}, err
		}
		if !res.Advanced {
			break
		}
		if onStep != nil {
			if err := onStep(res.From, res.To); err != nil {
				return StepResult{}, err
			}
		}
	}

	message := "Full council process complete!"
	if round.Mode == model.CouncilModeChat {
		message = "Group chat complete!"
	}
	return StepResult{
		Advanced: round.Status != start,
		From:     start,
		To:       round.Status,
		Message:  message,
	}, nil
}
