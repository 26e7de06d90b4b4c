package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"quest-chat-service/internal/blob"
	"quest-chat-service/internal/chat"
	"quest-chat-service/internal/config"
	"quest-chat-service/internal/db"
	"quest-chat-service/internal/handlers"
	"quest-chat-service/internal/live"
	"quest-chat-service/internal/middleware"
	"quest-chat-service/internal/observability"
	"quest-chat-service/internal/rabbitmq"
	"quest-chat-service/internal/repositories"
	"quest-chat-service/internal/telemetry"
	"quest-chat-service/internal/ws"
)

const serviceName = "quest-chat-service"

func main() {
	cfg := config.Load()
	logger := initLogger(cfg.LogLevel)

	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	database, err := db.Connect(cfg.DBDSN, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to db")
	}

	if cfg.AMQPURL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.WithError(err).Warn("event publisher disabled")
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer auditPublisher.Close()
	logger.WithField("mode", rabbitmq.PublisherMode(auditPublisher)).Info("audit publisher ready")
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit.logs", serviceName, cfg.Env, logger)

	var store blob.Store = blob.Disabled{}
	if cfg.GCSBucket != "" {
		gcsStore, err := blob.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSKeyPath)
		if err != nil {
			logger.WithError(err).Fatal("failed to create object store client")
		}
		defer gcsStore.Close()
		store = gcsStore
		logger.WithField("bucket", cfg.GCSBucket).Info("object store ready")
	} else {
		logger.Info("object store disabled, image messages unavailable")
	}

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	broker := live.NewBroker(messageRepo, logger)
	sender := chat.NewSender(chatRepo, messageRepo, store, broker, logger)
	lifecycle := chat.NewLifecycle(chatRepo, sender, logger)

	chatHandler := handlers.NewChatHandler(lifecycle, sender, broker)
	streamHandler := ws.NewChatStreamHandler(broker, chatRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	identity := middleware.Identity()

	router.POST("/quests/:quest_id/chat", identity, chatHandler.GetOrCreateQuestChat)
	router.GET("/chats", identity, chatHandler.ListChats)
	router.GET("/chats/:chat_id", identity, chatHandler.GetChat)
	router.POST("/chats/:chat_id/participants", identity, chatHandler.JoinChat)
	router.DELETE("/chats/:chat_id/participants/me", identity, chatHandler.LeaveChat)
	router.PATCH("/chats/:chat_id/active", identity, chatHandler.SetActive)
	router.GET("/chats/:chat_id/messages", identity, chatHandler.GetMessages)
	router.GET("/chats/:chat_id/messages/recent", identity, chatHandler.GetRecentMessages)
	router.POST("/chats/:chat_id/messages", identity, chatHandler.PostMessage)
	router.POST("/chats/:chat_id/messages/image", identity, chatHandler.PostImageMessage)
	router.POST("/chats/:chat_id/messages/location", identity, chatHandler.PostLocationMessage)

	router.GET("/ws/chats/:chat_id", streamHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	handlers.RegisterDebugRoutes(router, auditEmitter, broker, cfg.DebugRoutes)

	logger.WithField("port", cfg.Port).Info("starting quest chat service")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

func initLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
		logger.WithField("log_level", level).Warning("specified invalid log level")
	} else {
		logger.SetLevel(logLevel)
	}
	return logger
}
