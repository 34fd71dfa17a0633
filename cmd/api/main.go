package main

import (
	"context"
	"fmt"
	"log"

	"skylearn-chat/internal/broadcast"
	"skylearn-chat/internal/config"
	"skylearn-chat/internal/handler"
	"skylearn-chat/internal/llm"
	"skylearn-chat/internal/middleware"
	appredis "skylearn-chat/internal/redis"
	"skylearn-chat/internal/repository"
	"skylearn-chat/internal/services"
	"skylearn-chat/internal/sse"
	"skylearn-chat/internal/storage"
	ws "skylearn-chat/internal/websocket"
	"skylearn-chat/pkg/database"
	"skylearn-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	appLogger := logger.New(cfg.Server.Environment)
	defer appLogger.Sync()
	logger.SetGlobalLogger(appLogger)

	database.Connect(cfg)
	if err := repository.Migrate(database.DB); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	appredis.Initialize(appredis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisClient := appredis.GetClient()

	convRepo := repository.NewConversationRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	eventRepo := repository.NewEventLogRepository(database.DB)

	identities := services.NewIdentityService(cfg)
	access := services.NewAccessService(convRepo)
	spam := services.NewSpamDetector(messageRepo)

	generator := llm.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model)
	orchestrator := services.NewAIOrchestrator(generator, cfg.AI.ClassifyTimeout, cfg.AI.GenerateTimeout, cfg.AI.ConfidenceThreshold, appLogger)

	registry := broadcast.NewRegistry()
	router := broadcast.NewRouter(registry, appLogger)

	hub := ws.NewHub()
	registry.SetLiveChannel(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	statusStore := appredis.NewStatusStore(redisClient)
	names := appredis.NewNameCache(redisClient)
	limiter := appredis.NewRateLimiter(redisClient, appredis.DefaultRateLimitConfig())

	messages := services.NewMessageService(convRepo, messageRepo, eventRepo, access, spam, router, names, statusStore, orchestrator, appLogger)
	conversations := services.NewConversationService(convRepo, messageRepo, eventRepo, access, identities, router, appLogger)
	monitoring := services.NewMonitoringService(convRepo, messageRepo)

	store, err := storage.NewClient(ctx, cfg.S3)
	if err != nil {
		log.Fatalf("Failed to initialise object storage: %v", err)
	}

	wsHandler := ws.NewHandler(identities, hub, router, messages, conversations, access, statusStore, appLogger)
	sseHandler := sse.NewHandler(identities, access, registry, appLogger)

	conversationHandler := handler.NewConversationHandler(conversations, identities)
	messageHandler := handler.NewMessageHandler(messages)
	monitoringHandler := handler.NewMonitoringHandler(monitoring)
	attachmentHandler := handler.NewAttachmentHandler(store, access)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(appLogger))
	r.Use(middleware.ErrorHandler(appLogger))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.GET("/ws", wsHandler.Connect)
	r.GET("/chat/conversations/:id/stream", sseHandler.Stream)

	chat := r.Group("/chat")
	chat.Use(middleware.RateLimitMiddleware(limiter))
	{
		// Support threads can be opened before any authentication happens.
		chat.POST("/conversations/support", middleware.OptionalAuthMiddleware(identities), conversationHandler.CreateSupport)

		authed := chat.Group("")
		authed.Use(middleware.AuthMiddleware(identities))
		{
			authed.POST("/conversations", conversationHandler.Create)
			authed.GET("/conversations", conversationHandler.List)
			authed.GET("/conversations/:id", conversationHandler.GetByID)
			authed.DELETE("/conversations/:id", conversationHandler.Delete)
			authed.PATCH("/conversations/:id/archive", conversationHandler.SetArchived)
			authed.PATCH("/conversations/:id/star", conversationHandler.SetStarred)
			authed.POST("/conversations/:id/assign", conversationHandler.AssignAgent)
			authed.POST("/conversations/:id/resolve", conversationHandler.Resolve)

			authed.GET("/conversations/:id/messages", messageHandler.History)
			authed.POST("/conversations/:id/messages", messageHandler.Send)
			authed.POST("/conversations/:id/read", messageHandler.MarkRead)
			authed.PATCH("/messages/:id", messageHandler.Edit)
			authed.DELETE("/messages/:id", messageHandler.Delete)

			authed.GET("/monitoring/stats", monitoringHandler.Stats)
			authed.GET("/monitoring/sessions", monitoringHandler.Sessions)

			authed.POST("/attachments/presign", attachmentHandler.Presign)
			authed.POST("/cleanup", conversationHandler.Cleanup)
		}
	}

	appLogger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := r.Run(fmt.Sprintf(":%s", cfg.Server.Port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
