package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// -----------------------------
// Job 定义
// -----------------------------
type Job struct {
	SessionID  string
	EnqueuedAt time.Time
	Timeout    time.Duration
}

// -----------------------------
// RunAllExecutor 接口
// -----------------------------
type RunAllExecutor interface {
	ExecuteRunAll(ctx context.Context, sessionID string) error
}

// -----------------------------
// Orchestrator
// 后台执行 run-all，同一会话同时只允许一个任务排队或运行
// -----------------------------
type Orchestrator struct {
	jobQueue *jobQueue

	pool *ants.Pool

	executor   RunAllExecutor
	jobTimeout time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	activeSessions map[string]context.CancelFunc
	pendingMutex   sync.Mutex
}

// -----------------------------
// 错误定义
// -----------------------------
var (
	ErrOrchestratorStopped = errors.New("orchestrator is stopped")
	ErrQueueFull           = errors.New("job queue is full")
	ErrSessionBusy         = errors.New("session already has a run in progress")
)

// NewRunAllJob
// 说明：创建 run-all 任务；模型调用失败已经记录在轮次里，任务只执行一次
func NewRunAllJob(sessionID string, timeout time.Duration) *Job {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Job{
		SessionID:  sessionID,
		EnqueuedAt: time.Now(),
		Timeout:    timeout,
	}
}

// -----------------------------
// 构造函数
// -----------------------------
func NewOrchestrator(maxWorkers int, jobTimeout time.Duration, executor RunAllExecutor) (*Orchestrator, error) {
	ctx, cancel := context.WithCancel(context.Background())

	jobQ := newJobQueue(120)

	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(1000),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		klog.Errorf("ants pool initialization failed: %v", err)
		cancel()
		return nil, err
	}

	return &Orchestrator{
		jobQueue:       jobQ,
		pool:           pool,
		activeSessions: make(map[string]context.CancelFunc),
		executor:       executor,
		jobTimeout:     jobTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// -----------------------------
// 启动
// -----------------------------
func (o *Orchestrator) Start() {
	go o.dispatchLoop()
}

// -----------------------------
// 停止
// -----------------------------
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		klog.V(6).Infof("Orchestrator stopping...")

		o.cancel()
		o.jobQueue.Close()

		runningJobs := o.pool.Running()
		if runningJobs > 0 {
			klog.V(6).Infof("Waiting for %d running jobs to complete", runningJobs)
		}

		timeout := o.jobTimeout + time.Minute
		if err := o.pool.ReleaseTimeout(timeout); err == nil {
			klog.V(6).Infof("All running jobs completed before timeout")
		} else {
			klog.Warningf("Timeout after %v: some running jobs may be forced to stop", timeout)
		}

		klog.V(6).Infof("Orchestrator stopped completely")
	})
}

// -----------------------------
// 入队任务
// -----------------------------
func (o *Orchestrator) EnqueueJob(job *Job) error {
	select {
	case <-o.ctx.Done():
		return ErrOrchestratorStopped
	default:
	}

	if !o.reserve(job.SessionID) {
		klog.V(6).Infof("Session busy, job rejected: sessionID=%s", job.SessionID)
		return ErrSessionBusy
	}

	if err := o.jobQueue.Enqueue(job); err != nil {
		o.release(job.SessionID)
		if errors.Is(err, ErrQueueFull) {
			klog.Warningf("Job queue full: sessionID=%s", job.SessionID)
		}
		return err
	}
	klog.V(6).Infof("Job enqueued: sessionID=%s", job.SessionID)
	return nil
}

// Enqueue 按默认超时创建并入队 run-all 任务
func (o *Orchestrator) Enqueue(sessionID string) error {
	return o.EnqueueJob(NewRunAllJob(sessionID, o.jobTimeout))
}

// IsBusy 会话是否有任务在排队或运行
func (o *Orchestrator) IsBusy(sessionID string) bool {
	o.pendingMutex.Lock()
	defer o.pendingMutex.Unlock()
	_, ok := o.activeSessions[sessionID]
	return ok
}

// reserve 占用会话，排队期间 cancel 为 nil
func (o *Orchestrator) reserve(sessionID string) bool {
	o.pendingMutex.Lock()
	defer o.pendingMutex.Unlock()
	if _, ok := o.activeSessions[sessionID]; ok {
		return false
	}
	o.activeSessions[sessionID] = nil
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.pendingMutex.Lock()
	defer o.pendingMutex.Unlock()
	delete(o.activeSessions, sessionID)
}

func (o *Orchestrator) registerCancel(sessionID string, cancel context.CancelFunc) {
	o.pendingMutex.Lock()
	defer o.pendingMutex.Unlock()
	o.activeSessions[sessionID] = cancel
}

// -----------------------------
// 取消任务
// -----------------------------
func (o *Orchestrator) CancelJob(sessionID string) bool {
	o.pendingMutex.Lock()
	cancel, ok := o.activeSessions[sessionID]
	o.pendingMutex.Unlock()
	if !ok || cancel == nil {
		return false
	}

	klog.V(6).Infof("Cancelling job: sessionID=%s", sessionID)
	cancel()
	return true
}

// -----------------------------
// Dispatch Loop
// -----------------------------
func (o *Orchestrator) dispatchLoop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		default:
			job, ok := o.jobQueue.Dequeue()
			if !ok {
				continue
			}
			o.tryDispatch(job)
		}
	}
}

// tryDispatch 把任务提交到协程池，提交失败时放弃任务并释放会话
func (o *Orchestrator) tryDispatch(job *Job) {
	err := o.pool.Submit(func() {
		o.executeJob(job)
	})
	if err != nil {
		klog.Errorf("提交任务到协程池失败，放弃任务: sessionID=%s, err=%v", job.SessionID, err)
		o.release(job.SessionID)
	}
}

// executeJob 执行任务，结束后释放会话占用
func (o *Orchestrator) executeJob(job *Job) {
	defer o.release(job.SessionID)
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Job panic recovered: sessionID=%s, err=%v", job.SessionID, r)
		}
	}()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	ctx, cancel := context.WithTimeout(o.ctx, timeout)
	defer cancel()

	o.registerCancel(job.SessionID, cancel)

	err := o.executor.ExecuteRunAll(ctx, job.SessionID)
	switch {
	case err == nil:
		klog.V(6).Infof("Job completed: sessionID=%s, waited=%v", job.SessionID, time.Since(job.EnqueuedAt))
	case ctx.Err() != nil:
		klog.Warningf("任务被取消或超时: sessionID=%s, err=%v", job.SessionID, err)
	default:
		klog.Errorf("任务执行失败: sessionID=%s, err=%v", job.SessionID, err)
	}
}

// -----------------------------
// Queue Status
// -----------------------------
type QueueStatus struct {
	QueueLength    int `json:"queue_length"`
	ActiveWorkers  int `json:"active_workers"`
	ActiveSessions int `json:"active_sessions"`
}

func (o *Orchestrator) GetQueueStatus() *QueueStatus {
	o.pendingMutex.Lock()
	active := len(o.activeSessions)
	o.pendingMutex.Unlock()
	return &QueueStatus{
		QueueLength:    o.jobQueue.Len(),
		ActiveWorkers:  o.pool.Running(),
		ActiveSessions: active,
	}
}

// -----------------------------
// JobQueue (Ring Buffer) + Reject New
// -----------------------------
type jobQueue struct {
	maxSize int
	items   []*Job
	mutex   sync.Mutex
	cond    *sync.Cond
	closed  bool
}

func newJobQueue(maxSize int) *jobQueue {
	q := &jobQueue{
		maxSize: maxSize,
		items:   make([]*Job, 0, maxSize),
	}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *jobQueue) Enqueue(job *Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrOrchestratorStopped
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrQueueFull
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return nil
}

func (q *jobQueue) Dequeue() (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

func (q *jobQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

func (q *jobQueue) Close() {
	q.mutex.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mutex.Unlock()
}

// -------------------- Global Orchestrator --------------------
var (
	globalOrchestrator *Orchestrator
	orchestratorOnce   sync.Once
)

func InitGlobalOrchestrator(maxWorkers int, jobTimeout time.Duration, executor RunAllExecutor) error {
	var initErr error
	orchestratorOnce.Do(func() {
		orch, err := NewOrchestrator(maxWorkers, jobTimeout, executor)
		if err != nil {
			initErr = err
			return
		}
		globalOrchestrator = orch
		globalOrchestrator.Start()
		klog.V(6).Infof("Global orchestrator initialized: maxWorkers=%d", maxWorkers)
	})
	return initErr
}

func GetGlobalOrchestrator() *Orchestrator {
	return globalOrchestrator
}

func ShutdownGlobalOrchestrator() {
	if globalOrchestrator != nil {
		globalOrchestrator.Stop()
		klog.V(6).Infof("Global orchestrator shutdown")
	}
}
