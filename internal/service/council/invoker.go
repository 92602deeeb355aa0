package council

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/pkg/llm"
)

// Call 一次模型调用
type Call struct {
	Model   model.ModelInfo
	Prompt  string
	Options []llm.Option
}

// CallResult 单次调用结果，Err 非空时 Content 无意义
type CallResult struct {
	Model          model.ModelInfo
	Content        string
	Err            error
	ResponseTimeMs *int64
}

// Invoker 模型调用器
// 单个模型失败只记录在结果里，不影响其他调用
type Invoker struct {
	client llm.ChatCompleter
}

// NewInvoker 创建调用器
func NewInvoker(client llm.ChatCompleter) *Invoker {
	return &Invoker{client: client}
}

// Invoke 同步调用单个模型，成功时记录耗时
func (i *Invoker) Invoke(ctx context.Context, call Call) CallResult {
	start := time.Now()
	content, err := i.client.Chat(ctx, call.Model.ID, call.Prompt, call.Options...)
	if err != nil {
		klog.Warningf("模型调用失败: model=%s, error=%v", call.Model.ID, err)
		return CallResult{Model: call.Model, Err: err}
	}

	elapsed := time.Since(start).Milliseconds()
	klog.V(6).Infof("模型调用完成: model=%s, elapsed=%dms, contentLen=%d", call.Model.ID, elapsed, len(content))
	return CallResult{Model: call.Model, Content: content, ResponseTimeMs: &elapsed}
}

// InvokeAll 并发调用，等待全部结束
// 返回顺序与 calls 一致，与完成顺序无关
func (i *Invoker) InvokeAll(ctx context.Context, calls []Call) []CallResult {
	results := make([]CallResult, len(calls))

	var g errgroup.Group
	for idx, call := range calls {
		g.Go(func() error {
			results[idx] = i.Invoke(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Broadcast 同一提示词发给多个模型
func (i *Invoker) Broadcast(ctx context.Context, models []model.ModelInfo, prompt string, opts ...llm.Option) []CallResult {
	calls := make([]Call, 0, len(models))
	for _, m := range models {
		calls = append(calls, Call{Model: m, Prompt: prompt, Options: opts})
	}
	return i.InvokeAll(ctx, calls)
}

// ToModelResponses 把调用结果转换为议员回答
func ToModelResponses(results []CallResult) []model.ModelResponse {
	responses := make([]model.ModelResponse, 0, len(results))
	for _, r := range results {
		resp := model.ModelResponse{
			ModelID:   r.Model.ID,
			ModelName: r.Model.Name,
		}
		if r.Err != nil {
			resp.Error = r.Err.Error()
		} else {
			resp.Response = r.Content
			resp.ResponseTimeMs = r.ResponseTimeMs
		}
		responses = append(responses, resp)
	}
	return responses
}
