package council

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/pkg/llm"
)

const reviewJSON = `Sure! [{"response_num": 1, "rank": 1, "reasoning": "best"}, {"response_num": 2, "rank": 2, "reasoning": "ok"}] done`

// memberReply 回答问题或给出评审
func memberReply(answer string) replyFunc {
	return func(prompt string, _ llm.ChatOptions) (string, error) {
		if strings.Contains(prompt, "You are reviewing responses") {
			return reviewJSON, nil
		}
		return answer, nil
	}
}

func formalChat() *fakeChat {
	return newFakeChat().
		on("a", memberReply("ANSWER-A")).
		on("b", memberReply("ANSWER-B")).
		on("c", memberReply("ANSWER-C")).
		on("chair", reply("FINAL VERDICT"))
}

func newTestOrchestrator(chat llm.ChatCompleter, settings Settings) *Orchestrator {
	return NewOrchestrator(chat, testRoster(), settings)
}

func TestRunAllFormal(t *testing.T) {
	chat := formalChat()
	o := newTestOrchestrator(chat, DefaultSettings())
	round := model.NewRound("What is Go?", model.CouncilModeFormal, nil)

	var steps []string
	res, err := o.RunAll(context.Background(), &round, nil, func(from, to model.RoundStatus) error {
		steps = append(steps, fmt.Sprintf("%s->%s", from, to))
		return nil
	})
	require.NoError(t, err)

	assert.True(t, res.Advanced)
	assert.Equal(t, model.RoundStatusSynthesized, round.Status)
	assert.Equal(t, []string{
		"pending->responses_complete",
		"responses_complete->reviews_complete",
		"reviews_complete->synthesized",
	}, steps)

	require.Len(t, round.Responses, 3)
	require.Len(t, round.PeerReviews, 3)
	assert.Equal(t, "Alpha", round.PeerReviews[0].ReviewerModel)
	assert.Equal(t, model.RankEntry(1, 1, "best"), round.PeerReviews[0].Rankings[0])
	require.Len(t, round.DisagreementAnalysis, 3)
	assert.Equal(t, []int{1, 1, 1}, round.DisagreementAnalysis[0].RanksReceived)
	assert.Equal(t, "FINAL VERDICT", round.FinalSynthesis)
	assert.Empty(t, round.ChatMessages)

	chairCalls := chat.callsMatching("Original Question: What is Go?")
	require.Len(t, chairCalls, 1)
	assert.Equal(t, "chair", chairCalls[0].ModelID)
	assert.Equal(t, ChairmanSystem, chairCalls[0].Options.SystemPrompt)
	assert.Equal(t, 4096, chairCalls[0].Options.MaxTokens)
	assert.Contains(t, chairCalls[0].Prompt, "--- Review by Alpha ---")
	assert.Contains(t, chairCalls[0].Prompt, "--- Bravo ---\nANSWER-B")

	for _, c := range chat.callsMatching("You are reviewing responses") {
		assert.InDelta(t, 0.3, c.Options.Temperature, 1e-9)
		assert.Empty(t, c.Options.SystemPrompt)
	}
}

func TestCollectResponsesUsesSelectionAndSystemPrompt(t *testing.T) {
	chat := formalChat()
	o := newTestOrchestrator(chat, DefaultSettings())
	round := model.NewRound("Q", model.CouncilModeFormal, []string{"c", "a", "unknown"})

	res, err := o.CollectResponses(context.Background(), &round, nil)
	require.NoError(t, err)
	assert.True(t, res.Advanced)

	require.Len(t, round.Responses, 2)
	assert.Equal(t, "a", round.Responses[0].ModelID)
	assert.Equal(t, "c", round.Responses[1].ModelID)
	for _, c := range chat.recorded() {
		assert.Equal(t, CouncilMemberSystem, c.Options.SystemPrompt)
		assert.Equal(t, "Q", c.Prompt)
	}

	previous := []model.Round{{Question: "Earlier", FinalSynthesis: "Verdict"}}
	next := model.NewRound("Follow up", model.CouncilModeFormal, []string{"a"})
	_, err = o.CollectResponses(context.Background(), &next, previous)
	require.NoError(t, err)
	last := chat.recorded()[len(chat.recorded())-1]
	assert.Equal(t, CouncilMemberSystemWithContext, last.Options.SystemPrompt)
	assert.True(t, strings.HasSuffix(last.Prompt, "Current Question: Follow up"))
}

func TestReviewPromptExcludesOwnResponse(t *testing.T) {
	chat := formalChat()
	o := newTestOrchestrator(chat, DefaultSettings())
	round := model.NewRound("Q", model.CouncilModeFormal, nil)

	_, err := o.CollectResponses(context.Background(), &round, nil)
	require.NoError(t, err)
	_, err = o.CollectReviews(context.Background(), &round, nil)
	require.NoError(t, err)

	reviews := chat.callsMatching("You are reviewing responses")
	require.Len(t, reviews, 3)
	for _, c := range reviews {
		switch c.ModelID {
		case "a":
			assert.NotContains(t, c.Prompt, "ANSWER-A")
			assert.Contains(t, c.Prompt, "--- Response 2 ---\nANSWER-B")
			assert.Contains(t, c.Prompt, "--- Response 3 ---\nANSWER-C")
		case "b":
			assert.NotContains(t, c.Prompt, "ANSWER-B")
			assert.NotContains(t, c.Prompt, "--- Response 2 ---")
			assert.Contains(t, c.Prompt, "--- Response 1 ---\nANSWER-A")
		}
	}
}

func TestCollectReviewsSingleValidResponse(t *testing.T) {
	chat := formalChat()
	o := newTestOrchestrator(chat, DefaultSettings())
	round := model.Round{
		Question: "Q",
		Mode:     model.CouncilModeFormal,
		Status:   model.RoundStatusResponsesComplete,
		Responses: []model.ModelResponse{
			{ModelID: "a", ModelName: "Alpha", Response: "only one"},
			{ModelID: "b", ModelName: "Bravo", Error: "timeout"},
		},
	}

	res, err := o.CollectReviews(context.Background(), &round, nil)
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.Equal(t, model.RoundStatusReviewsComplete, round.Status)
	assert.Empty(t, round.PeerReviews)
	assert.Empty(t, round.DisagreementAnalysis)
	assert.Empty(t, chat.recorded())

	data, err := json.Marshal(round)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"peer_reviews":[]`)
	assert.Contains(t, string(data), `"disagreement_analysis":[]`)
}

func TestReviewFailuresDegradeToRecords(t *testing.T) {
	chat := newFakeChat().
		on("a", memberReply("ANSWER-A")).
		on("b", func(prompt string, _ llm.ChatOptions) (string, error) {
			if strings.Contains(prompt, "You are reviewing") {
				return "", errors.New("rate limited")
			}
			return "ANSWER-B", nil
		}).
		on("c", func(prompt string, _ llm.ChatOptions) (string, error) {
			if strings.Contains(prompt, "You are reviewing") {
				return "[not json at all]", nil
			}
			return "ANSWER-C", nil
		})
	o := newTestOrchestrator(chat, DefaultSettings())
	round := model.NewRound("Q", model.CouncilModeFormal, nil)

	_, err := o.CollectResponses(context.Background(), &round, nil)
	require.NoError(t, err)
	_, err = o.CollectReviews(context.Background(), &round, nil)
	require.NoError(t, err)

	require.Len(t, round.PeerReviews, 3)
	assert.True(t, round.PeerReviews[0].Rankings[0].IsRank())
	assert.Equal(t, model.ErrorEntry("rate limited"), round.PeerReviews[1].Rankings[0])
	assert.Equal(t, model.RawEntry("[not json at all]"), round.PeerReviews[2].Rankings[0])
	assert.Equal(t, model.RoundStatusReviewsComplete, round.Status)
}

func TestOutOfOrderOperations(t *testing.T) {
	o := newTestOrchestrator(formalChat(), DefaultSettings())
	ctx := context.Background()

	pending := model.NewRound("Q", model.CouncilModeFormal, nil)
	_, err := o.CollectReviews(ctx, &pending, nil)
	assert.ErrorIs(t, err, ErrResponsesRequired)
	_, err = o.Synthesize(ctx, &pending, nil)
	assert.ErrorIs(t, err, ErrResponsesRequired)
	assert.Equal(t, model.RoundStatusPending, pending.Status)

	collected := model.Round{Question: "Q", Mode: model.CouncilModeFormal, Status: model.RoundStatusResponsesComplete}
	res, err := o.CollectResponses(ctx, &collected, nil)
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.Equal(t, "Responses already collected for this round", res.Message)
	_, err = o.Synthesize(ctx, &collected, nil)
	assert.ErrorIs(t, err, ErrReviewsRequired)
	assert.Equal(t, model.RoundStatusResponsesComplete, collected.Status)

	done := model.Round{Question: "Q", Mode: model.CouncilModeFormal, Status: model.RoundStatusSynthesized, FinalSynthesis: "x"}
	for _, step := range []func(context.Context, *model.Round, []model.Round) (StepResult, error){
		o.CollectResponses, o.CollectReviews, o.Synthesize,
	} {
		res, err := step(ctx, &done, nil)
		require.NoError(t, err)
		assert.False(t, res.Advanced)
		assert.Equal(t, model.RoundStatusSynthesized, done.Status)
	}
	assert.Equal(t, "x", done.FinalSynthesis)
}

func TestModeMismatch(t *testing.T) {
	o := newTestOrchestrator(formalChat(), DefaultSettings())
	ctx := context.Background()

	chatRound := model.NewRound("Q", model.CouncilModeChat, nil)
	_, err := o.CollectResponses(ctx, &chatRound, nil)
	assert.ErrorIs(t, err, ErrModeMismatch)
	_, err = o.Synthesize(ctx, &chatRound, nil)
	assert.ErrorIs(t, err, ErrModeMismatch)

	formal := model.NewRound("Q", model.CouncilModeFormal, nil)
	_, err = o.RunChat(ctx, &formal, nil)
	assert.ErrorIs(t, err, ErrModeMismatch)
	assert.Equal(t, model.RoundStatusPending, formal.Status)
}

func TestSynthesisFailureKeepsStatus(t *testing.T) {
	chat := formalChat().on("chair", fail("chairman offline"))
	o := newTestOrchestrator(chat, DefaultSettings())
	round := model.NewRound("Q", model.CouncilModeFormal, nil)

	var steps int
	_, err := o.RunAll(context.Background(), &round, nil, func(_, _ model.RoundStatus) error {
		steps++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.Contains(t, err.Error(), "chairman offline")

	assert.Equal(t, 2, steps)
	assert.Equal(t, model.RoundStatusReviewsComplete, round.Status)
	assert.Empty(t, round.FinalSynthesis)
}

func TestRunAllResumesFromCurrentStatus(t *testing.T) {
	chat := formalChat()
	o := newTestOrchestrator(chat, DefaultSettings())
	round := model.Round{
		Question: "Q",
		Mode:     model.CouncilModeFormal,
		Status:   model.RoundStatusResponsesComplete,
		Responses: []model.ModelResponse{
			{ModelID: "a", ModelName: "Alpha", Response: "ANSWER-A"},
			{ModelID: "b", ModelName: "Bravo", Response: "ANSWER-B"},
		},
	}

	res, err := o.RunAll(context.Background(), &round, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusResponsesComplete, res.From)
	assert.Equal(t, model.RoundStatusSynthesized, res.To)

	for _, c := range chat.recorded() {
		assert.NotEqual(t, CouncilMemberSystem, c.Options.SystemPrompt, "responses must not be collected again")
	}

	again, err := o.RunAll(context.Background(), &round, nil, nil)
	require.NoError(t, err)
	assert.False(t, again.Advanced)
}

func TestRunAllStopsOnPersistError(t *testing.T) {
	o := newTestOrchestrator(formalChat(), DefaultSettings())
	round := model.NewRound("Q", model.CouncilModeFormal, nil)

	persistErr := errors.New("disk full")
	_, err := o.RunAll(context.Background(), &round, nil, func(_, _ model.RoundStatus) error {
		return persistErr
	})
	assert.ErrorIs(t, err, persistErr)
	assert.Equal(t, model.RoundStatusResponsesComplete, round.Status)
}

func TestCancelledContextLeavesRoundUntouched(t *testing.T) {
	o := newTestOrchestrator(formalChat(), DefaultSettings())
	round := model.NewRound("Q", model.CouncilModeFormal, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.CollectResponses(ctx, &round, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.RoundStatusPending, round.Status)
	assert.Empty(t, round.Responses)
}

var failureMarker = regexp.MustCompile(`^\[Failed to respond: .+\]$`)

func TestRunChatSequentialWithFailure(t *testing.T) {
	chat := newFakeChat().
		on("a", reply("Go is great for services.")).
		on("b", fail("model overloaded")).
		on("chair", reply("@Alpha agreed, and the tooling helps."))
	o := newTestOrchestrator(chat, Settings{ChatTurns: 2})
	round := model.NewRound("Is Go good?", model.CouncilModeChat, []string{"a", "b", "chair"})

	res, err := o.RunChat(context.Background(), &round, nil)
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.Equal(t, model.RoundStatusChatComplete, round.Status)

	require.Len(t, round.ChatMessages, 6)
	var order []string
	for _, m := range round.ChatMessages {
		order = append(order, m.ModelID)
	}
	assert.Equal(t, []string{"a", "b", "chair", "a", "b", "chair"}, order)

	assert.Regexp(t, failureMarker, round.ChatMessages[1].Content)
	assert.Regexp(t, failureMarker, round.ChatMessages[4].Content)
	assert.Nil(t, round.ChatMessages[1].ResponseTimeMs)
	assert.NotNil(t, round.ChatMessages[0].ResponseTimeMs)
	assert.Equal(t, "Alpha", round.ChatMessages[2].ReplyTo)

	calls := chat.recorded()
	require.Len(t, calls, 6)
	assert.Contains(t, calls[0].Options.SystemPrompt, "first to respond")
	assert.Contains(t, calls[0].Prompt, "You're first")
	assert.Contains(t, calls[1].Options.SystemPrompt, "Alpha, Chair")
	assert.Contains(t, calls[1].Prompt, "Alpha: Go is great for services.")
	assert.Contains(t, calls[3].Prompt, "Bravo: [Failed to respond: model overloaded]")

	assert.Empty(t, round.Responses)
	assert.Empty(t, round.PeerReviews)
}

func TestRunAllChat(t *testing.T) {
	o := newTestOrchestrator(newFakeChat(), DefaultSettings())
	round := model.NewRound("Q", model.CouncilModeChat, nil)

	var steps int
	res, err := o.RunAll(context.Background(), &round, nil, func(_, _ model.RoundStatus) error {
		steps++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Group chat complete!", res.Message)
	assert.Equal(t, 1, steps)
	// 三个议员加主席
	assert.Len(t, round.ChatMessages, 4)

	res, err = o.RunAll(context.Background(), &round, nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.Len(t, round.ChatMessages, 4)
}

func TestStatusNeverRegresses(t *testing.T) {
	o := newTestOrchestrator(formalChat(), DefaultSettings())
	ctx := context.Background()
	round := model.NewRound("Q", model.CouncilModeFormal, nil)
	order := []model.RoundStatus{
		model.RoundStatusPending,
		model.RoundStatusResponsesComplete,
		model.RoundStatusReviewsComplete,
		model.RoundStatusSynthesized,
	}
	index := func(s model.RoundStatus) int {
		for i, v := range order {
			if v == s {
				return i
			}
		}
		return -1
	}

	ops := []func(context.Context, *model.Round, []model.Round) (StepResult, error){
		o.Synthesize, o.CollectReviews, o.CollectResponses, o.CollectResponses,
		o.Synthesize, o.CollectReviews, o.CollectReviews, o.Synthesize, o.CollectResponses,
	}
	last := index(round.Status)
	for _, op := range ops {
		_, _ = op(ctx, &round, nil)
		current := index(round.Status)
		assert.GreaterOrEqual(t, current, last)
		assert.LessOrEqual(t, current-last, 1, "status must not skip phases")
		last = current
	}
	assert.Equal(t, model.RoundStatusSynthesized, round.Status)
}
