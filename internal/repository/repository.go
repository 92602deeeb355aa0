package repository

import (
	"errors"

	"github.com/samueldervishii/llm-council/internal/model"
)

// ErrSessionNotFound 会话不存在（或已软删除且未要求包含）
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository 会话持久化
// Rounds 作为整体随会话一起读写
type SessionRepository interface {
	Create(session *model.Session) error
	Get(id string, includeDeleted bool) (*model.Session, error)
	GetByShareToken(token string) (*model.Session, error)
	Update(session *model.Session) error
	ListAll(limit int, includeDeleted bool) ([]model.Session, error)
	ListPinnedFirst(limit int) ([]model.Session, error)
	SoftDelete(id string) error
	Restore(id string) error
	HardDelete(id string) error
}
