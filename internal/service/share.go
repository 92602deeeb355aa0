package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/samueldervishii/llm-council/internal/eventbus"
	"github.com/samueldervishii/llm-council/internal/model"
)

// ErrNotShared 会话未分享
var ErrNotShared = errors.New("session is not shared")

const shareTokenBytes = 16

// ShareInfo 分享状态，未分享时 token 和 url 为 null
type ShareInfo struct {
	IsShared   bool       `json:"is_shared"`
	ShareToken *string    `json:"share_token"`
	ShareURL   *string    `json:"share_url"`
	SharedAt   *time.Time `json:"shared_at,omitempty"`
}

// Share 开启分享，已分享时复用原 token
func (s *SessionService) Share(ctx context.Context, id, requestBaseURL string) (*ShareInfo, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.sessionRepo.Get(id, false)
	if err != nil {
		return nil, err
	}
	if !session.IsShared || session.ShareToken == "" {
		token, err := newShareToken()
		if err != nil {
			klog.Errorf("生成分享 token 失败: sessionID=%s, error=%v", id, err)
			return nil, err
		}
		now := time.Now()
		session.IsShared = true
		session.ShareToken = token
		session.SharedAt = &now
		if err := s.sessionRepo.Update(session); err != nil {
			klog.Errorf("保存分享状态失败: sessionID=%s, error=%v", id, err)
			return nil, err
		}
		klog.V(6).Infof("会话已分享: sessionID=%s", id)
		s.publishSession(ctx, eventbus.SessionEventShared, session)
	}
	return s.shareInfo(session, requestBaseURL), nil
}

// Unshare 撤销分享，返回撤销前是否处于分享状态
func (s *SessionService) Unshare(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.sessionRepo.Get(id, false)
	if err != nil {
		return false, err
	}
	if !session.IsShared {
		return false, nil
	}
	session.IsShared = false
	session.ShareToken = ""
	session.SharedAt = nil
	if err := s.sessionRepo.Update(session); err != nil {
		klog.Errorf("撤销分享失败: sessionID=%s, error=%v", id, err)
		return false, err
	}
	klog.V(6).Infof("会话分享已撤销: sessionID=%s", id)
	s.publishSession(ctx, eventbus.SessionEventUnshared, session)
	return true, nil
}

// GetShareInfo 查询分享状态
func (s *SessionService) GetShareInfo(id, requestBaseURL string) (*ShareInfo, error) {
	session, err := s.sessionRepo.Get(id, false)
	if err != nil {
		return nil, err
	}
	return s.shareInfo(session, requestBaseURL), nil
}

// GetShared 通过 token 获取只读会话
func (s *SessionService) GetShared(token string) (*model.Session, error) {
	session, err := s.sessionRepo.GetByShareToken(token)
	if err != nil {
		return nil, err
	}
	if !session.IsShared {
		return nil, ErrNotShared
	}
	return session, nil
}

func (s *SessionService) shareInfo(session *model.Session, requestBaseURL string) *ShareInfo {
	if !session.IsShared || session.ShareToken == "" {
		return &ShareInfo{}
	}
	token := session.ShareToken
	url := s.ShareURL(requestBaseURL, token)
	return &ShareInfo{
		IsShared:   true,
		ShareToken: &token,
		ShareURL:   &url,
		SharedAt:   session.SharedAt,
	}
}

// ShareURL 配置了 public_base_url 时优先使用，否则使用请求地址
func (s *SessionService) ShareURL(requestBaseURL, token string) string {
	base := s.cfg.Server.PublicBaseURL
	if base == "" {
		base = requestBaseURL
	}
	return strings.TrimRight(base, "/") + "/shared/" + token
}

func newShareToken() (string, error) {
	buf := make([]byte, shareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
