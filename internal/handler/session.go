package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/service"
)

type SessionHandler struct {
	service *service.SessionService
}

func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{
		service: service,
	}
}

func (h *SessionHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = v
	}

	sessions, err := h.service.List(limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, service.SessionResult{Session: session, Message: "Session retrieved"})
}

func (h *SessionHandler) Update(c *gin.Context) {
	var req service.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.Update(c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, service.SessionResult{Session: session, Message: "Session updated"})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session deleted"})
}

func (h *SessionHandler) Restore(c *gin.Context) {
	session, err := h.service.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, service.SessionResult{Session: session, Message: "Session restored"})
}

func (h *SessionHandler) Continue(c *gin.Context) {
	var req service.ContinueSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Continue(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) CollectResponses(c *gin.Context) {
	h.advance(c, h.service.CollectResponses)
}

func (h *SessionHandler) CollectReviews(c *gin.Context) {
	h.advance(c, h.service.CollectReviews)
}

func (h *SessionHandler) Synthesize(c *gin.Context) {
	h.advance(c, h.service.Synthesize)
}

func (h *SessionHandler) RunChat(c *gin.Context) {
	h.advance(c, h.service.RunChat)
}

func (h *SessionHandler) RunAll(c *gin.Context) {
	h.advance(c, h.service.RunAll)
}

// RunAllAsync 投递到后台执行，立即返回 202
func (h *SessionHandler) RunAllAsync(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.RunAllAsync(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Council run queued. Poll /api/sessions/{id} for progress.", "session_id": id})
}

func (h *SessionHandler) CancelRunAll(c *gin.Context) {
	if !h.service.CancelRunAll(c.Param("id")) {
		c.JSON(http.StatusOK, gin.H{"message": "No running council process for this session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Council run cancelled"})
}

func (h *SessionHandler) advance(c *gin.Context, op func(ctx context.Context, id string) (*service.SessionResult, error)) {
	result, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ModelsResponse 议员名单与主席
type ModelsResponse struct {
	CouncilModels []model.ModelInfo `json:"council_models"`
	ChairmanModel model.ModelInfo   `json:"chairman_model"`
}

func (h *SessionHandler) Models(c *gin.Context) {
	roster := h.service.Roster()
	c.JSON(http.StatusOK, ModelsResponse{
		CouncilModels: roster.Models,
		ChairmanModel: roster.Chairman,
	})
}
