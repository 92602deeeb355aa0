package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samueldervishii/llm-council/config"
	"k8s.io/klog/v2"
)

// Client OpenAI 兼容的 HTTP 客户端（默认对接 OpenRouter）
type Client struct {
	BaseURL  string
	APIKey   string
	Referer  string
	Title    string
	Defaults ChatOptions
	Client   *http.Client
}

// NewClient 创建新的 LLM 客户端
func NewClient(cfg *config.Config) *Client {
	timeout := cfg.LLM.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	defaults := DefaultChatOptions()
	if cfg.LLM.MaxTokens > 0 {
		defaults.MaxTokens = cfg.LLM.MaxTokens
	}
	if cfg.LLM.Temperature > 0 {
		defaults.Temperature = cfg.LLM.Temperature
	}
	return &Client{
		BaseURL:  strings.TrimRight(cfg.LLM.APIURL, "/"),
		APIKey:   cfg.LLM.APIKey,
		Referer:  cfg.LLM.Referer,
		Title:    cfg.LLM.Title,
		Defaults: defaults,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Chat 向指定模型发送单轮对话请求
func (c *Client) Chat(ctx context.Context, modelID, prompt string, opts ...Option) (string, error) {
	o := resolveOptions(c.Defaults, opts)
	klog.V(6).Infof("Chat 请求: model=%s, promptLen=%d, maxTokens=%d", modelID, len(prompt), o.MaxTokens)

	messages := make([]ChatMessage, 0, 2)
	if o.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: o.SystemPrompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	resp, err := c.sendRequest(ctx, ChatRequest{
		Model:       modelID,
		Messages:    messages,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM: model=%s", modelID)
	}

	content := resp.Choices[0].Message.Content
	klog.V(6).Infof("Chat 响应: model=%s, contentLen=%d", modelID, len(content))
	return content, nil
}

// sendRequest 发送 HTTP 请求到 LLM API
func (c *Client) sendRequest(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	url := c.BaseURL + "/chat/completions"
	klog.V(8).Infof("发送 LLM 请求: url=%s, model=%s", url, reqBody.Model)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.Referer != "" {
		req.Header.Set("HTTP-Referer", c.Referer)
	}
	if c.Title != "" {
		req.Header.Set("X-Title", c.Title)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		klog.Errorf("LLM 请求失败: model=%s, status=%d, body=%s", reqBody.Model, resp.StatusCode, string(body))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}

	return &chatResp, nil
}
