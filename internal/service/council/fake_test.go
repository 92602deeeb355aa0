package council

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/pkg/llm"
)

type recordedCall struct {
	ModelID string
	Prompt  string
	Options llm.ChatOptions
}

type replyFunc func(prompt string, opts llm.ChatOptions) (string, error)

// fakeChat 按模型 ID 返回预设回复，记录所有调用
type fakeChat struct {
	mu       sync.Mutex
	calls    []recordedCall
	replies  map[string]replyFunc
	fallback replyFunc
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		replies:  make(map[string]replyFunc),
		fallback: func(prompt string, opts llm.ChatOptions) (string, error) {
			return "ok", nil
		},
	}
}

func (f *fakeChat) on(modelID string, fn replyFunc) *fakeChat {
	f.replies[modelID] = fn
	return f
}

func (f *fakeChat) Chat(ctx context.Context, modelID, prompt string, opts ...llm.Option) (string, error) {
	var o llm.ChatOptions
	for _, opt := range opts {
		opt(&o)
	}

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{ModelID: modelID, Prompt: prompt, Options: o})
	fn, ok := f.replies[modelID]
	if !ok {
		fn = f.fallback
	}
	f.mu.Unlock()

	return fn(prompt, o)
}

func (f *fakeChat) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeChat) callsMatching(substr string) []recordedCall {
	var out []recordedCall
	for _, c := range f.recorded() {
		if strings.Contains(c.Prompt, substr) {
			out = append(out, c)
		}
	}
	return out
}

func reply(content string) replyFunc {
	return func(string, llm.ChatOptions) (string, error) { return content, nil }
}

func fail(msg string) replyFunc {
	return func(string, llm.ChatOptions) (string, error) { return "", errors.New(msg) }
}

var (
	modelA   = model.ModelInfo{ID: "a", Name: "Alpha"}
	modelB   = model.ModelInfo{ID: "b", Name: "Bravo"}
	modelC   = model.ModelInfo{ID: "c", Name: "Charlie"}
	chairman = model.ModelInfo{ID: "chair", Name: "Chair"}
)

func testRoster() Roster {
	return NewRoster([]model.ModelInfo{modelA, modelB, modelC}, chairman)
}
