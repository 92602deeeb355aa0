package council

import (
	"context"
	"fmt"
	"strings"

	"github.com/duke-git/lancet/v2/slice"
	"k8s.io/klog/v2"

	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/pkg/llm"
	"github.com/samueldervishii/llm-council/internal/utils"
)

// replyPreviewLen 检测点名时只看回复开头的字符数
const replyPreviewLen = 50

// FailureMarker 群聊中失败发言的占位内容
func FailureMarker(err error) string {
	return fmt.Sprintf("[Failed to respond: %v]", err)
}

// runGroupChat 顺序群聊：每轮按固定顺序让每个参与者发言一次
// 每次调用都要等上一条发言完成，提示词包含之前的全部发言
func (o *Orchestrator) runGroupChat(ctx context.Context, question string, participants []model.ModelInfo, previous []model.Round, turns int) []model.ChatMessage {
	messages := make([]model.ChatMessage, 0, len(participants)*turns)

	for turn := 0; turn < turns; turn++ {
		for _, p := range participants {
			others := slice.Filter(participants, func(_ int, m model.ModelInfo) bool {
				return m.ID != p.ID
			})

			result := o.invoker.Invoke(ctx, Call{
				Model:  p,
				Prompt: BuildChatPrompt(question, messages, previous),
				Options: []llm.Option{
					llm.WithSystemPrompt(BuildChatSystemPrompt(p, others, len(messages) == 0)),
				},
			})

			msg := model.ChatMessage{ModelID: p.ID, ModelName: p.Name}
			if result.Err != nil {
				msg.Content = FailureMarker(result.Err)
			} else {
				msg.Content = result.Content
				msg.ReplyTo = DetectReplyTo(result.Content, others)
				msg.ResponseTimeMs = result.ResponseTimeMs
			}
			messages = append(messages, msg)
		}
		klog.V(6).Infof("群聊第 %d 轮结束: participants=%d, messages=%d", turn+1, len(participants), len(messages))
	}

	return messages
}

// DetectReplyTo 粗略判断回复是否在点名其他参与者
// 优先匹配 @Name，其次看开头是否出现对方名字；结果仅供参考
func DetectReplyTo(content string, others []model.ModelInfo) string {
	lower := strings.ToLower(content)
	for _, m := range others {
		if m.Name != "" && strings.Contains(lower, "@"+strings.ToLower(m.Name)) {
			return m.Name
		}
	}

	preview := utils.Truncate(lower, replyPreviewLen)
	for _, m := range others {
		if m.Name != "" && strings.Contains(preview, strings.ToLower(m.Name)) {
			return m.Name
		}
	}
	return ""
}
