package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/samueldervishii/llm-council/internal/repository"
	"github.com/samueldervishii/llm-council/internal/service"
	"github.com/samueldervishii/llm-council/internal/service/council"
	"github.com/samueldervishii/llm-council/internal/service/orchestrator"
)

// preconditionMessages 对外展示的前置条件提示
var preconditionMessages = map[error]string{
	service.ErrNoRounds:         "No rounds in session",
	service.ErrRoundNotComplete: "Previous round must be completed before continuing",
}

func preconditionMessage(err error) string {
	for target, msg := range preconditionMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// respondError 把服务层错误映射为 HTTP 状态码
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound), errors.Is(err, service.ErrNotShared):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case service.IsPreconditionError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": preconditionMessage(err)})
	case errors.Is(err, orchestrator.ErrSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrQueueFull),
		errors.Is(err, orchestrator.ErrOrchestratorStopped),
		errors.Is(err, service.ErrAsyncUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, council.ErrSynthesisFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		klog.Errorf("请求处理失败: path=%s, error=%v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
