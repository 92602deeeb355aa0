package repository

import (
	"errors"
	"time"

	"github.com/samueldervishii/llm-council/internal/model"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(session *model.Session) error {
	return r.db.Create(session).Error
}

func (r *sessionRepository) Get(id string, includeDeleted bool) (*model.Session, error) {
	var session model.Session
	tx := r.db.Where("id = ?", id)
	if !includeDeleted {
		tx = tx.Where("is_deleted = ?", false)
	}
	if err := tx.First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) GetByShareToken(token string) (*model.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	var session model.Session
	err := r.db.Where("share_token = ? AND is_shared = ? AND is_deleted = ?", token, true, false).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Update 整体覆盖写入，零值字段同样落库
func (r *sessionRepository) Update(session *model.Session) error {
	result := r.db.Select("*").Omit("created_at").Updates(session)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListAll 按创建时间倒序，limit <= 0 表示不限制
func (r *sessionRepository) ListAll(limit int, includeDeleted bool) ([]model.Session, error) {
	var sessions []model.Session
	tx := r.db.Model(&model.Session{})
	if !includeDeleted {
		tx = tx.Where("is_deleted = ?", false)
	}
	tx = tx.Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListPinnedFirst 未删除的会话，置顶在前，其余按创建时间倒序
func (r *sessionRepository) ListPinnedFirst(limit int) ([]model.Session, error) {
	var sessions []model.Session
	tx := r.db.Model(&model.Session{}).
		Where("is_deleted = ?", false).
		Order("is_pinned DESC").
		Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepository) SoftDelete(id string) error {
	now := time.Now()
	result := r.db.Model(&model.Session{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepository) Restore(id string) error {
	result := r.db.Model(&model.Session{}).
		Where("id = ? AND is_deleted = ?", id, true).
		Updates(map[string]interface{}{
			"is_deleted": false,
			"deleted_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepository) HardDelete(id string) error {
	result := r.db.Where("id = ?", id).Delete(&model.Session{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}
