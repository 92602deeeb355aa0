package llm

import (
	"context"
	"fmt"
)

// ChatCompleter 对话补全能力
// 每次调用独立受超时约束，非 2xx 响应或网络错误都返回 error
type ChatCompleter interface {
	Chat(ctx context.Context, modelID, prompt string, opts ...Option) (string, error)
}

// ChatOptions 单次调用参数
type ChatOptions struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// Option 调用参数选项
type Option func(*ChatOptions)

// WithSystemPrompt 设置系统提示词
func WithSystemPrompt(prompt string) Option {
	return func(o *ChatOptions) {
		o.SystemPrompt = prompt
	}
}

// WithMaxTokens 设置最大生成 token 数
func WithMaxTokens(n int) Option {
	return func(o *ChatOptions) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// WithTemperature 设置采样温度
func WithTemperature(t float64) Option {
	return func(o *ChatOptions) {
		o.Temperature = t
	}
}

// DefaultChatOptions 默认参数：max_tokens=2048, temperature=0.7
func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

func resolveOptions(base ChatOptions, opts []Option) ChatOptions {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// ChatMessage OpenAI 格式消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest OpenAI 格式请求
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

// ChatResponse OpenAI 格式响应
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LLM API error (%d): %s", e.StatusCode, e.Body)
}
