package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/samueldervishii/llm-council/config"
	"github.com/samueldervishii/llm-council/internal/eventbus"
	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/repository"
	"github.com/samueldervishii/llm-council/internal/service/council"
	"github.com/samueldervishii/llm-council/internal/service/orchestrator"
	"github.com/samueldervishii/llm-council/internal/service/statemachine"
	"github.com/samueldervishii/llm-council/internal/utils"
)

var (
	// ErrNoRounds 会话没有任何轮次
	ErrNoRounds = errors.New("no rounds in session")
	// ErrRoundNotComplete 上一轮未完成，不能追加新一轮
	ErrRoundNotComplete = errors.New("previous round must be completed before continuing")
	// ErrEmptyQuestion 问题为空
	ErrEmptyQuestion = errors.New("question must not be empty")
	// ErrInvalidMode 未知的审议模式
	ErrInvalidMode = errors.New("mode must be 'formal' or 'chat'")
	// ErrAsyncUnavailable 后台任务池未初始化
	ErrAsyncUnavailable = errors.New("background runner is not available")
)

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	Question       string            `json:"question" binding:"required"`
	Mode           model.CouncilMode `json:"mode"`
	SelectedModels []string          `json:"selected_models"`
}

// ContinueSessionRequest 追加新一轮请求，模式和模型沿用首轮
type ContinueSessionRequest struct {
	Question string `json:"question" binding:"required"`
}

// UpdateSessionRequest 更新会话元数据，字段为 nil 表示不修改
type UpdateSessionRequest struct {
	Title    *string `json:"title"`
	IsPinned *bool   `json:"is_pinned"`
}

// SessionResult 会话操作结果
type SessionResult struct {
	Session *model.Session `json:"session"`
	Message string         `json:"message"`
}

// SessionService 会话聚合管理：建轮、推进、持久化
// 同一会话的写操作由 keyedLock 串行化
type SessionService struct {
	cfg          *config.Config
	sessionRepo  repository.SessionRepository
	council      *council.Orchestrator
	roundBus     *eventbus.RoundEventBus
	sessionBus   *eventbus.SessionEventBus
	orchestrator *orchestrator.Orchestrator
	locks        *keyedLock
}

func NewSessionService(cfg *config.Config, sessionRepo repository.SessionRepository, councilOrch *council.Orchestrator, roundBus *eventbus.RoundEventBus, sessionBus *eventbus.SessionEventBus) *SessionService {
	return &SessionService{
		cfg:         cfg,
		sessionRepo: sessionRepo,
		council:     councilOrch,
		roundBus:    roundBus,
		sessionBus:  sessionBus,
		locks:       newKeyedLock(),
	}
}

// SetOrchestrator 设置后台任务编排器
// 用于解决循环依赖问题
func (s *SessionService) SetOrchestrator(o *orchestrator.Orchestrator) {
	s.orchestrator = o
}

// Roster 当前议员名单与主席
func (s *SessionService) Roster() council.Roster {
	return s.council.Roster()
}

// List 列出未删除的会话：置顶在前，其余按创建时间倒序
func (s *SessionService) List(limit int) ([]model.SessionSummary, error) {
	if limit <= 0 {
		limit = s.cfg.Session.ListLimit
	}
	sessions, err := s.sessionRepo.ListPinnedFirst(limit)
	if err != nil {
		klog.Errorf("获取会话列表失败: error=%v", err)
		return nil, err
	}

	summaries := make([]model.SessionSummary, 0, len(sessions))
	for i := range sessions {
		summaries = append(summaries, sessions[i].Summary())
	}
	return summaries, nil
}

// Create 新建会话，首轮处于 pending，不调用任何模型
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*SessionResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	mode := req.Mode
	if mode == "" {
		mode = model.CouncilModeFormal
	}
	if !mode.IsValid() {
		return nil, ErrInvalidMode
	}

	session := &model.Session{
		ID:     uuid.New().String(),
		Title:  utils.Truncate(question, s.titleLength()),
		Rounds: []model.Round{model.NewRound(question, mode, req.SelectedModels)},
	}
	if err := s.sessionRepo.Create(session); err != nil {
		klog.Errorf("创建会话失败: error=%v", err)
		return nil, err
	}
	klog.V(6).Infof("会话已创建: sessionID=%s, mode=%s, selected=%d", session.ID, mode, len(req.SelectedModels))
	s.publishSession(ctx, eventbus.SessionEventCreated, session)

	return &SessionResult{
		Session: session,
		Message: fmt.Sprintf("Session created in %s mode. Call /api/sessions/{id}/run-all to start.", modeLabel(mode)),
	}, nil
}

// Get 获取未删除的会话
func (s *SessionService) Get(id string) (*model.Session, error) {
	return s.sessionRepo.Get(id, false)
}

// Update 修改标题或置顶状态
func (s *SessionService) Update(id string, req UpdateSessionRequest) (*model.Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.sessionRepo.Get(id, false)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title != "" {
			session.Title = utils.Truncate(title, s.titleLength())
		}
	}
	if req.IsPinned != nil {
		session.IsPinned = *req.IsPinned
		if session.IsPinned {
			now := time.Now()
			session.PinnedAt = &now
		} else {
			session.PinnedAt = nil
		}
	}
	if err := s.sessionRepo.Update(session); err != nil {
		klog.Errorf("更新会话失败: sessionID=%s, error=%v", id, err)
		return nil, err
	}
	return session, nil
}

// Delete 软删除
func (s *SessionService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.sessionRepo.SoftDelete(id); err != nil {
		return err
	}
	klog.V(6).Infof("会话已删除: sessionID=%s", id)
	s.publishSession(ctx, eventbus.SessionEventDeleted, &model.Session{ID: id})
	return nil
}

// Restore 恢复软删除的会话
func (s *SessionService) Restore(ctx context.Context, id string) (*model.Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.sessionRepo.Restore(id); err != nil {
		return nil, err
	}
	session, err := s.sessionRepo.Get(id, false)
	if err != nil {
		return nil, err
	}
	klog.V(6).Infof("会话已恢复: sessionID=%s", id)
	s.publishSession(ctx, eventbus.SessionEventRestored, session)
	return session, nil
}

// Continue 在已完成的会话上追加新一轮
// 模式与选中的模型沿用首轮
func (s *SessionService) Continue(ctx context.Context, id string, req ContinueSessionRequest) (*SessionResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.sessionRepo.Get(id, false)
	if err != nil {
		return nil, err
	}
	current, _ := session.CurrentRound()
	if current == nil {
		return nil, ErrNoRounds
	}
	if !current.Status.IsComplete() {
		return nil, ErrRoundNotComplete
	}

	first := session.Rounds[0]
	session.Rounds = append(session.Rounds, model.NewRound(question, first.Mode, first.SelectedModels))
	if err := s.sessionRepo.Update(session); err != nil {
		klog.Errorf("追加轮次失败: sessionID=%s, error=%v", id, err)
		return nil, err
	}
	klog.V(6).Infof("已追加新一轮: sessionID=%s, rounds=%d, mode=%s", id, len(session.Rounds), first.Mode)
	s.publishSession(ctx, eventbus.SessionEventContinued, session)

	next := "council responses"
	if first.Mode == model.CouncilModeChat {
		next = "group chat"
	}
	return &SessionResult{
		Session: session,
		Message: fmt.Sprintf("New round added. Call /api/sessions/{id}/run-all to get %s.", next),
	}, nil
}

// CollectResponses 推进当前轮次：收集议员回答
func (s *SessionService) CollectResponses(ctx context.Context, id string) (*SessionResult, error) {
	return s.advance(ctx, id, singleStep(s.council.CollectResponses))
}

// CollectReviews 推进当前轮次：议员互评
func (s *SessionService) CollectReviews(ctx context.Context, id string) (*SessionResult, error) {
	return s.advance(ctx, id, singleStep(s.council.CollectReviews))
}

// Synthesize 推进当前轮次：主席总结
func (s *SessionService) Synthesize(ctx context.Context, id string) (*SessionResult, error) {
	return s.advance(ctx, id, singleStep(s.council.Synthesize))
}

// RunChat 推进当前轮次：群聊
func (s *SessionService) RunChat(ctx context.Context, id string) (*SessionResult, error) {
	return s.advance(ctx, id, singleStep(s.council.RunChat))
}

// RunAll 从当前状态走完剩余阶段，每个阶段完成后立即落库
func (s *SessionService) RunAll(ctx context.Context, id string) (*SessionResult, error) {
	return s.advance(ctx, id, s.council.RunAll)
}

// ExecuteRunAll 供后台编排器调用
func (s *SessionService) ExecuteRunAll(ctx context.Context, sessionID string) error {
	_, err := s.RunAll(ctx, sessionID)
	return err
}

// RunAllAsync 把 run-all 投递到后台任务池
func (s *SessionService) RunAllAsync(id string) error {
	if s.orchestrator == nil {
		return ErrAsyncUnavailable
	}
	session, err := s.sessionRepo.Get(id, false)
	if err != nil {
		return err
	}
	if len(session.Rounds) == 0 {
		return ErrNoRounds
	}
	return s.orchestrator.Enqueue(id)
}

// CancelRunAll 取消正在后台执行的 run-all，已完成的阶段保留
func (s *SessionService) CancelRunAll(id string) bool {
	if s.orchestrator == nil {
		return false
	}
	return s.orchestrator.CancelJob(id)
}

// QueueStatus 后台任务池状态
func (s *SessionService) QueueStatus() *orchestrator.QueueStatus {
	if s.orchestrator == nil {
		return &orchestrator.QueueStatus{}
	}
	return s.orchestrator.GetQueueStatus()
}

type roundOp func(ctx context.Context, round *model.Round, previous []model.Round, onStep council.StepFunc) (council.StepResult, error)

type stepOp func(ctx context.Context, round *model.Round, previous []model.Round) (council.StepResult, error)

// singleStep 单阶段操作在推进后回调一次 onStep
func singleStep(op stepOp) roundOp {
	return func(ctx context.Context, round *model.Round, previous []model.Round, onStep council.StepFunc) (council.StepResult, error) {
		res, err := op(ctx, round, previous)
		if err != nil {
			return res, err
		}
		if res.Advanced {
			if err := onStep(res.From, res.To); err != nil {
				return council.StepResult{}, err
			}
		}
		return res, nil
	}
}

// advance 在会话锁内对当前轮次执行 op
// 每次状态迁移都会落库并发布 RoundEventAdvanced；非前置条件错误发布 RoundEventFailed
func (s *SessionService) advance(ctx context.Context, id string, op roundOp) (*SessionResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.sessionRepo.Get(id, false)
	if err != nil {
		return nil, err
	}
	round, previous := session.CurrentRound()
	if round == nil {
		return nil, ErrNoRounds
	}
	index := len(session.Rounds) - 1
	start := round.Status

	onStep := func(from, to model.RoundStatus) error {
		if err := s.sessionRepo.Update(session); err != nil {
			klog.Errorf("轮次落库失败: sessionID=%s, round=%d, %s -> %s, error=%v", id, index, from, to, err)
			return err
		}
		s.publishRound(ctx, eventbus.RoundEvent{
			Type:       eventbus.RoundEventAdvanced,
			SessionID:  id,
			RoundIndex: index,
			Mode:       round.Mode,
			From:       from,
			To:         to,
		})
		return nil
	}

	res, err := op(ctx, round, previous, onStep)
	if err != nil {
		if !IsPreconditionError(err) {
			s.publishRound(ctx, eventbus.RoundEvent{
				Type:       eventbus.RoundEventFailed,
				SessionID:  id,
				RoundIndex: index,
				Mode:       round.Mode,
				From:       start,
				Error:      err.Error(),
			})
		}
		return nil, err
	}

	return &SessionResult{Session: session, Message: res.Message}, nil
}

// IsPreconditionError 调用方请求不合法，会话未被修改
func IsPreconditionError(err error) bool {
	var transitionErr *statemachine.InvalidRoundTransitionError
	switch {
	case errors.Is(err, council.ErrResponsesRequired),
		errors.Is(err, council.ErrReviewsRequired),
		errors.Is(err, council.ErrModeMismatch),
		errors.Is(err, ErrNoRounds),
		errors.Is(err, ErrRoundNotComplete),
		errors.Is(err, ErrEmptyQuestion),
		errors.Is(err, ErrInvalidMode),
		errors.As(err, &transitionErr):
		return true
	}
	return false
}

func (s *SessionService) titleLength() int {
	if s.cfg.Session.TitleLength > 0 {
		return s.cfg.Session.TitleLength
	}
	return 100
}

func (s *SessionService) publishRound(ctx context.Context, event eventbus.RoundEvent) {
	if err := s.roundBus.Publish(ctx, event.Type, event); err != nil {
		klog.Warningf("发布轮次事件失败: type=%s, sessionID=%s, error=%v", event.Type, event.SessionID, err)
	}
}

func (s *SessionService) publishSession(ctx context.Context, eventType eventbus.SessionEventType, session *model.Session) {
	event := eventbus.SessionEvent{Type: eventType, SessionID: session.ID, RoundCount: len(session.Rounds)}
	if err := s.sessionBus.Publish(ctx, eventType, event); err != nil {
		klog.Warningf("发布会话事件失败: type=%s, sessionID=%s, error=%v", eventType, session.ID, err)
	}
}

func modeLabel(mode model.CouncilMode) string {
	if mode == model.CouncilModeChat {
		return "group chat"
	}
	return "formal council"
}
