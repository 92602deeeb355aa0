package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/samueldervishii/llm-council/config"
	"github.com/samueldervishii/llm-council/internal/eventbus"
	"github.com/samueldervishii/llm-council/internal/handler"
	"github.com/samueldervishii/llm-council/internal/pkg/database"
	"github.com/samueldervishii/llm-council/internal/pkg/llm"
	"github.com/samueldervishii/llm-council/internal/repository"
	"github.com/samueldervishii/llm-council/internal/router"
	"github.com/samueldervishii/llm-council/internal/service"
	"github.com/samueldervishii/llm-council/internal/service/council"
	"github.com/samueldervishii/llm-council/internal/service/orchestrator"
	"github.com/samueldervishii/llm-council/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	if cfg.LLM.APIKey == "" {
		klog.Warningf("未配置 OPENROUTER_API_KEY，模型调用将失败")
	}
	if len(cfg.Council.Models) == 0 {
		log.Fatalf("No council models configured")
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化 Repository
	sessionRepo := repository.NewSessionRepository(db)

	// 初始化模型调用
	chat, err := llm.NewChatCompleter(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	roster := council.NewRoster(cfg.Council.Models, cfg.Council.Chairman)
	councilOrch := council.NewOrchestrator(chat, roster, council.Settings{
		ReviewTemperature:  cfg.LLM.ReviewTemperature,
		SynthesisMaxTokens: cfg.LLM.SynthesisMaxTokens,
		ChatTurns:          cfg.Council.ChatTurns,
	})

	// 事件总线
	roundBus := eventbus.NewRoundEventBus()
	sessionBus := eventbus.NewSessionEventBus()
	roundStats := subscriber.NewRoundEventSubscriber()
	roundStats.Register(roundBus)
	subscriber.NewSessionEventSubscriber().Register(sessionBus)

	// 初始化 Service
	sessionService := service.NewSessionService(cfg, sessionRepo, councilOrch, roundBus, sessionBus)

	// 初始化后台任务编排器，用于异步 run-all
	if err := orchestrator.InitGlobalOrchestrator(cfg.Worker.MaxWorkers, cfg.Worker.JobTimeout, sessionService); err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}
	sessionService.SetOrchestrator(orchestrator.GetGlobalOrchestrator())
	defer orchestrator.ShutdownGlobalOrchestrator()

	// 初始化 Handler
	sessionHandler := handler.NewSessionHandler(sessionService)
	statusHandler := handler.NewStatusHandler(sessionService, roundStats)

	// 设置路由
	r := router.Setup(cfg, sessionHandler, statusHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on port %s...", cfg.Server.Port)
		klog.V(6).Infof("议员=%d, 主席=%s, provider=%s", len(roster.Models), roster.Chairman.ID, cfg.LLM.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	klog.V(6).Info("收到退出信号，开始关闭服务")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		klog.Errorf("服务关闭失败: %v", err)
	}
}
