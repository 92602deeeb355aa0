package repository

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/samueldervishii/llm-council/internal/model"
)

func newTestSessionRepo(t *testing.T) SessionRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Session{}))
	return NewSessionRepository(db)
}

func ms(v int64) *int64 { return &v }

func TestSessionRepositoryPersistsRounds(t *testing.T) {
	repo := newTestSessionRepo(t)

	session := &model.Session{ID: "s-1", Title: "first", Rounds: []model.Round{model.NewRound("Q1", model.CouncilModeFormal, nil)}}
	require.NoError(t, repo.Create(session))

	session.Rounds[0].Status = model.RoundStatusSynthesized
	session.Rounds[0].Responses = []model.ModelResponse{
		{ModelID: "a", ModelName: "A", Response: "answer", ResponseTimeMs: ms(42)},
		{ModelID: "b", ModelName: "B", Error: "timeout"},
	}
	session.Rounds[0].PeerReviews = []model.PeerReview{
		{ReviewerModel: "A", Rankings: []model.Ranking{model.RankEntry(1, 1, "good")}},
		{ReviewerModel: "B", Rankings: []model.Ranking{model.RawEntry("unparseable")}},
	}
	session.Rounds[0].FinalSynthesis = "verdict"
	session.Rounds = append(session.Rounds,
		model.Round{
			Question: "Q2",
			Mode:     model.CouncilModeChat,
			Status:   model.RoundStatusChatComplete,
			ChatMessages: []model.ChatMessage{
				{ModelID: "a", ModelName: "A", Content: "hi", ResponseTimeMs: ms(7)},
				{ModelID: "b", ModelName: "B", Content: "@A hello", ReplyTo: "A"},
			},
		},
		model.NewRound("Q3", model.CouncilModeFormal, []string{"a"}),
	)
	require.NoError(t, repo.Update(session))

	got, err := repo.Get("s-1", false)
	require.NoError(t, err)
	assert.Equal(t, session.Rounds, got.Rounds)
	assert.Equal(t, "first", got.Title)
}

func TestSessionRepositoryUpdateMissing(t *testing.T) {
	repo := newTestSessionRepo(t)
	err := repo.Update(&model.Session{ID: "nope", Title: "x"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = repo.Get("nope", true)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepositoryListAndSoftDelete(t *testing.T) {
	repo := newTestSessionRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, repo.Create(&model.Session{ID: id, Title: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	list, err := repo.ListAll(0, false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[2].ID)

	limited, err := repo.ListAll(2, false)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, repo.SoftDelete("mid"))
	assert.ErrorIs(t, repo.SoftDelete("mid"), ErrSessionNotFound)

	list, err = repo.ListAll(0, false)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = repo.Get("mid", false)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	deleted, err := repo.Get("mid", true)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.NotNil(t, deleted.DeletedAt)

	all, err := repo.ListAll(0, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, repo.Restore("mid"))
	restored, err := repo.Get("mid", false)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted)
	assert.Nil(t, restored.DeletedAt)
	assert.ErrorIs(t, repo.Restore("mid"), ErrSessionNotFound)
}

func TestSessionRepositoryListPinnedFirst(t *testing.T) {
	repo := newTestSessionRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new", "trash"} {
		require.NoError(t, repo.Create(&model.Session{ID: id, Title: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	old, err := repo.Get("old", false)
	require.NoError(t, err)
	old.IsPinned = true
	old.PinnedAt = &base
	require.NoError(t, repo.Update(old))
	require.NoError(t, repo.SoftDelete("trash"))

	list, err := repo.ListPinnedFirst(0)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"old", "new", "mid"}, ids)

	limited, err := repo.ListPinnedFirst(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "old", limited[0].ID)
	assert.Equal(t, "new", limited[1].ID)
}

func TestSessionRepositoryHardDelete(t *testing.T) {
	repo := newTestSessionRepo(t)
	require.NoError(t, repo.Create(&model.Session{ID: "gone"}))

	require.NoError(t, repo.HardDelete("gone"))
	_, err := repo.Get("gone", true)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, repo.HardDelete("gone"), ErrSessionNotFound)
}

func TestSessionRepositoryGetByShareToken(t *testing.T) {
	repo := newTestSessionRepo(t)
	now := time.Now()
	require.NoError(t, repo.Create(&model.Session{ID: "shared", IsShared: true, ShareToken: "tok", SharedAt: &now}))
	require.NoError(t, repo.Create(&model.Session{ID: "private", ShareToken: "old"}))

	got, err := repo.GetByShareToken("tok")
	require.NoError(t, err)
	assert.Equal(t, "shared", got.ID)

	_, err = repo.GetByShareToken("old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = repo.GetByShareToken("")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, repo.SoftDelete("shared"))
	_, err = repo.GetByShareToken("tok")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
