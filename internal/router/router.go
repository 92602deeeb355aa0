package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/samueldervishii/llm-council/config"
	"github.com/samueldervishii/llm-council/internal/handler"
)

func Setup(
	cfg *config.Config,
	sessionHandler *handler.SessionHandler,
	statusHandler *handler.StatusHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	// 多轮会话的 JSON 体积较大
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/", statusHandler.Root)

	api := r.Group("/api")
	{
		api.GET("/models", sessionHandler.Models)
		api.GET("/status", statusHandler.GetStatus) // 后台任务池与轮次统计
		api.GET("/shared/:token", sessionHandler.GetShared)

		sessions := api.Group("/sessions")
		{
			sessions.GET("", sessionHandler.List)
			sessions.POST("", sessionHandler.Create)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.PATCH("/:id", sessionHandler.Update)
			sessions.DELETE("/:id", sessionHandler.Delete)
			sessions.POST("/:id/restore", sessionHandler.Restore)
			sessions.POST("/:id/continue", sessionHandler.Continue)

			sessions.POST("/:id/responses", sessionHandler.CollectResponses)
			sessions.POST("/:id/reviews", sessionHandler.CollectReviews)
			sessions.POST("/:id/synthesize", sessionHandler.Synthesize)
			sessions.POST("/:id/chat", sessionHandler.RunChat)
			sessions.POST("/:id/run-all", sessionHandler.RunAll)
			sessions.POST("/:id/run-all/async", sessionHandler.RunAllAsync)
			sessions.POST("/:id/run-all/cancel", sessionHandler.CancelRunAll)

			sessions.POST("/:id/share", sessionHandler.Share)
			sessions.DELETE("/:id/share", sessionHandler.Unshare)
			sessions.GET("/:id/share-info", sessionHandler.ShareInfo)
		}
	}

	return r
}
