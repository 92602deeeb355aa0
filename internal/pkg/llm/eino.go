package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/samueldervishii/llm-council/config"
	"k8s.io/klog/v2"
)

// EinoClient 基于 eino openai ChatModel 的实现
// 每个模型 ID 缓存一个 ChatModel 实例
type EinoClient struct {
	cfg      config.LLMConfig
	defaults ChatOptions

	mu     sync.Mutex
	models map[string]*openai.ChatModel
}

// NewEinoClient 创建 eino 客户端
func NewEinoClient(cfg *config.Config) *EinoClient {
	defaults := DefaultChatOptions()
	if cfg.LLM.MaxTokens > 0 {
		defaults.MaxTokens = cfg.LLM.MaxTokens
	}
	if cfg.LLM.Temperature > 0 {
		defaults.Temperature = cfg.LLM.Temperature
	}
	return &EinoClient{
		cfg:      cfg.LLM,
		defaults: defaults,
		models:   make(map[string]*openai.ChatModel),
	}
}

func (c *EinoClient) chatModel(ctx context.Context, modelID string) (*openai.ChatModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[modelID]; ok {
		return m, nil
	}

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxTokens := c.defaults.MaxTokens
	m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:   c.cfg.APIURL,
		APIKey:    c.cfg.APIKey,
		Model:     modelID,
		Timeout:   timeout,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		klog.Errorf("[EinoClient] 创建 ChatModel 失败: model=%s, error=%v", modelID, err)
		return nil, err
	}
	klog.V(6).Infof("[EinoClient] ChatModel 创建成功: model=%s", modelID)
	c.models[modelID] = m
	return m, nil
}

// Chat 通过 eino ChatModel 完成单轮对话
func (c *EinoClient) Chat(ctx context.Context, modelID, prompt string, opts ...Option) (string, error) {
	o := resolveOptions(c.defaults, opts)

	m, err := c.chatModel(ctx, modelID)
	if err != nil {
		return "", err
	}

	messages := make([]*schema.Message, 0, 2)
	if o.SystemPrompt != "" {
		messages = append(messages, schema.SystemMessage(o.SystemPrompt))
	}
	messages = append(messages, schema.UserMessage(prompt))

	resp, err := m.Generate(ctx, messages,
		einomodel.WithTemperature(float32(o.Temperature)),
		einomodel.WithMaxTokens(o.MaxTokens),
	)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("no response from LLM: model=%s", modelID)
	}
	return resp.Content, nil
}

// NewChatCompleter 按配置选择实现
func NewChatCompleter(cfg *config.Config) (ChatCompleter, error) {
	switch cfg.LLM.Provider {
	case "", "openrouter", "openai":
		return NewClient(cfg), nil
	case "eino":
		return NewEinoClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLM.Provider)
	}
}
