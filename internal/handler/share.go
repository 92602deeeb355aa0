package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/samueldervishii/llm-council/internal/service"
)

func (h *SessionHandler) Share(c *gin.Context) {
	info, err := h.service.Share(c.Request.Context(), c.Param("id"), requestBaseURL(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"share_token": info.ShareToken,
		"share_url":   info.ShareURL,
		"message":     "Session shared successfully",
	})
}

func (h *SessionHandler) Unshare(c *gin.Context) {
	wasShared, err := h.service.Unshare(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !wasShared {
		c.JSON(http.StatusOK, gin.H{"message": "Session was not shared"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session sharing revoked"})
}

func (h *SessionHandler) ShareInfo(c *gin.Context) {
	info, err := h.service.GetShareInfo(c.Param("id"), requestBaseURL(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// GetShared 只读访问分享的会话
func (h *SessionHandler) GetShared(c *gin.Context) {
	session, err := h.service.GetShared(c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, service.SessionResult{Session: session, Message: "Shared session retrieved"})
}

// requestBaseURL 根据请求推导站点地址，兼容反向代理头
func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := c.Request.Host
	if fwd := c.GetHeader("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}
