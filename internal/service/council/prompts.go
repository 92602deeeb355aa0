package council

import (
	"fmt"
	"strings"

	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/utils"
)

const (
	CouncilMemberSystem = "You are a helpful assistant participating in a council of AI models. " +
		"Provide a direct, thoughtful, and concise answer to the user's question. " +
		"Do NOT ask follow-up questions. Do NOT ask for clarification. " +
		"Just give your best answer based on the question asked."

	CouncilMemberSystemWithContext = "You are a helpful assistant participating in a council of AI models. " +
		"You are continuing an ongoing conversation. Use the previous context to provide " +
		"a relevant, direct, and concise answer to the user's follow-up question. " +
		"Do NOT ask follow-up questions. Do NOT ask for clarification. " +
		"Just give your best answer based on the conversation context."

	ChairmanSystem = "You are the Chairman of an AI council. " +
		"Synthesize the collective wisdom into a clear, authoritative final answer."
)

// CouncilSystemPrompt 有历史轮次时使用带上下文的版本
func CouncilSystemPrompt(previous []model.Round) string {
	if len(previous) > 0 {
		return CouncilMemberSystemWithContext
	}
	return CouncilMemberSystem
}

// BuildConversationContext 把历史轮次的问题和结论串成上下文块
func BuildConversationContext(previous []model.Round) string {
	if len(previous) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("=== PREVIOUS CONVERSATION ===\n")
	for i, r := range previous {
		fmt.Fprintf(&b, "\n--- Round %d ---\n", i+1)
		fmt.Fprintf(&b, "User Question: %s\n", r.Question)
		if r.FinalSynthesis != "" {
			fmt.Fprintf(&b, "Council Verdict: %s\n", r.FinalSynthesis)
		}
	}
	b.WriteString("\n=== END PREVIOUS CONVERSATION ===\n\n")
	return b.String()
}

// BuildQuestionWithContext 议员收到的用户提示词
func BuildQuestionWithContext(question string, previous []model.Round) string {
	if len(previous) == 0 {
		return question
	}
	return BuildConversationContext(previous) + "Current Question: " + question
}

// BuildReviewPrompt 评审提示词
// 编号取有效回答列表中的位置，评审者自己的回答不展示但保留编号
func BuildReviewPrompt(question string, valid []model.ModelResponse, reviewerID string, previous []model.Round) string {
	var responses strings.Builder
	for i, resp := range valid {
		if resp.ModelID == reviewerID {
			continue
		}
		fmt.Fprintf(&responses, "\n\n--- Response %d ---\n%s", i+1, resp.Response)
	}

	return BuildConversationContext(previous) +
		"You are reviewing responses from other AI models to the following question:\n\n" +
		"Question: " + question + "\n\n" +
		"Here are the anonymous responses:\n" +
		responses.String() + "\n\n" +
		"Please rank these responses from best to worst based on:\n" +
		"1. Accuracy and correctness\n" +
		"2. Clarity and helpfulness\n" +
		"3. Completeness\n\n" +
		"Provide your ranking as a JSON array with this format:\n" +
		"[\n" +
		"  {\"response_num\": 1, \"rank\": 1, \"reasoning\": \"Brief explanation\"},\n" +
		"  {\"response_num\": 2, \"rank\": 2, \"reasoning\": \"Brief explanation\"}\n" +
		"]\n\n" +
		"Only output the JSON array, nothing else."
}

// BuildReviewsText 评审结果按评审者展开，供主席参考
func BuildReviewsText(reviews []model.PeerReview) string {
	var b strings.Builder
	for _, review := range reviews {
		rankings := "[]"
		if len(review.Rankings) > 0 {
			rankings = utils.ToIndentJSON(review.Rankings)
		}
		fmt.Fprintf(&b, "\n\n--- Review by %s ---\n%s", review.ReviewerModel, rankings)
	}
	return b.String()
}

// BuildSynthesisPrompt 主席总结提示词
func BuildSynthesisPrompt(question string, valid []model.ModelResponse, reviewsText string, chairmanName string, previous []model.Round) string {
	var responses strings.Builder
	for _, resp := range valid {
		fmt.Fprintf(&responses, "\n\n--- %s ---\n%s", resp.ModelName, resp.Response)
	}

	intro := "You are the Chairman of a council of AI models."
	if chairmanName != "" {
		intro = "You are " + chairmanName + ", the Chairman of a council of AI models."
	}

	return BuildConversationContext(previous) +
		intro + " Your job is to give the final verdict based on the council's responses.\n\n" +
		"Original Question: " + question + "\n\n" +
		"Council Responses:\n" +
		responses.String() + "\n\n" +
		"Peer Reviews (rankings from each model):\n" +
		reviewsText + "\n\n" +
		"Based on all the responses and peer reviews:\n" +
		"1. Summarize what the council members said\n" +
		"2. State which response(s) you agree with most and why\n" +
		"3. Give YOUR final opinion/answer to the original question\n\n" +
		"Be direct and decisive. Do NOT ask follow-up questions. Give a clear final answer."
}

// BuildChatSystemPrompt 群聊系统提示词
// 还没有人发言时按首个发言者处理，否则列出其他参与者并要求简短对话式回复
func BuildChatSystemPrompt(self model.ModelInfo, others []model.ModelInfo, first bool) string {
	if first {
		return fmt.Sprintf("You are %s, taking part in a group chat with other AI models. "+
			"You are the first to respond. Give a direct, concise answer to the question in a few sentences. "+
			"Do NOT ask follow-up questions.", self.Name)
	}

	names := make([]string, 0, len(others))
	for _, m := range others {
		names = append(names, m.Name)
	}
	return fmt.Sprintf("You are %s, taking part in a group chat with other AI models: %s. "+
		"Read the conversation so far and reply the way you would in a group chat: short and conversational, 2-4 sentences. "+
		"Agree, disagree or build on what others said. "+
		"To address someone directly, start with @Name. "+
		"Do NOT ask the user follow-up questions.", self.Name, strings.Join(names, ", "))
}

// BuildChatPrompt 群聊用户提示词：上下文 + 问题 + 完整发言记录
func BuildChatPrompt(question string, messages []model.ChatMessage, previous []model.Round) string {
	var b strings.Builder
	b.WriteString(BuildConversationContext(previous))
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\n")

	if len(messages) == 0 {
		b.WriteString("No one has replied yet. You're first.")
		return b.String()
	}

	b.WriteString("Conversation so far:\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.ModelName, m.Content)
	}
	b.WriteString("\nYour reply:")
	return b.String()
}
