package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/samueldervishii/llm-council/internal/service"
	"github.com/samueldervishii/llm-council/internal/subscriber"
)

type StatusHandler struct {
	service    *service.SessionService
	roundStats *subscriber.RoundEventSubscriber
}

func NewStatusHandler(service *service.SessionService, roundStats *subscriber.RoundEventSubscriber) *StatusHandler {
	return &StatusHandler{
		service:    service,
		roundStats: roundStats,
	}
}

// Root 服务存活检查
func (h *StatusHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "LLM Council API", "status": "running"})
}

// GetStatus 后台任务池状态与轮次事件计数
func (h *StatusHandler) GetStatus(c *gin.Context) {
	resp := gin.H{"queue": h.service.QueueStatus()}
	if h.roundStats != nil {
		resp["rounds"] = h.roundStats.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
