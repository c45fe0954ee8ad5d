package bootstrap

import (
	"context"
	"log"
	"time"

	"assistant-proxy-be/internal/config"
	"assistant-proxy-be/internal/controller"
	"assistant-proxy-be/internal/handler"
	"assistant-proxy-be/internal/pkg/logger"
	"assistant-proxy-be/internal/repository/contract"
	"assistant-proxy-be/internal/repository/implementation"
	"assistant-proxy-be/internal/repository/memory"
	"assistant-proxy-be/internal/repository/redisstore"
	"assistant-proxy-be/internal/service"
	"assistant-proxy-be/internal/websocket"
	assistantEvents "assistant-proxy-be/pkg/assistant/events"
	"assistant-proxy-be/pkg/conversation"
	pktNats "assistant-proxy-be/pkg/nats"
	"assistant-proxy-be/pkg/upstream"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AssistantController controller.IAssistantController

	// WebSockets
	WidgetHandler *handler.WidgetHandler
	WebSocketHub  *websocket.Hub

	// Background workers (exposed for main.go to run)
	TranscriptDispatcher *conversation.TranscriptDispatcher

	Logger logger.ILogger

	closers []func()
}

// NewContainer wires the application. db may be nil, which disables the turn audit log.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	widgetLogger := logger.NewIsolatedLogger(cfg.App.WidgetLogFilePath)

	upstreamClient := upstream.NewClient(upstream.Options{
		RuntimeURL:       cfg.Assistant.RuntimeURL,
		TranscriptURL:    cfg.Assistant.TranscriptURL,
		APIKey:           cfg.Assistant.APIKey,
		TranscriptAPIKey: cfg.Assistant.TranscriptAPIKey,
		ProjectID:        cfg.Assistant.ProjectID,
		VersionID:        cfg.Assistant.VersionID,
		Timeout:          cfg.Assistant.Timeout,
	})
	if !upstreamClient.InteractConfigured() {
		log.Printf("[WARN] ASSISTANT_API_KEY is not set, every assistant call will fail with a configuration error")
	}
	if !upstreamClient.TranscriptConfigured() {
		log.Printf("[WARN] transcript credentials are incomplete, transcripts will not be saved")
	}

	// 2. Infrastructure
	// NATS
	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			natsPub = pub
		}
	}

	// Redis
	rdb := connectRedis(cfg.App.RedisURL)

	// Session storage: Redis when reachable, process memory otherwise
	var sessions service.SessionScoper
	if rdb != nil {
		sessions = redisstore.NewSessionRepository(rdb, "assistant:session", cfg.Session.StorageTTL)
	} else {
		log.Printf("[INFO] Using in-memory session storage")
		sessions = memory.NewSessionRepository(cfg.Session.StorageTTL)
	}

	// Turn audit log
	var turnLogs contract.AssistantTurnLogRepository
	if db != nil {
		turnLogs = implementation.NewAssistantTurnLogRepository(db)
	}

	// Domain events; a nil transport makes every publish a no-op
	var eventPublisher assistantEvents.Publisher
	if natsPub != nil {
		eventPublisher = assistantEvents.NewNatsPublisher(natsPub, sysLogger)
	}

	// 3. Services
	assistantService := service.NewAssistantService(upstreamClient, turnLogs, eventPublisher, sysLogger)
	sessionService := service.NewSessionService(sessions, cfg.Session.TokenSecret, cfg.Session.TokenTTL, sysLogger)

	// 4. Widget channel
	wsHub := websocket.NewHub(rdb, widgetLogger)
	gateway := websocket.NewServiceGateway(assistantService)
	dispatcher := conversation.NewTranscriptDispatcher(websocket.NewNotifyingSink(gateway, wsHub), widgetLogger)
	wsHub.SetTranscriptSaver(dispatcher)
	widgetHandler := handler.NewWidgetHandler(gateway, sessions, dispatcher, wsHub, widgetLogger)

	c := &Container{
		AssistantController:  controller.NewAssistantController(assistantService, sessionService, cfg.Session.TokenSecret),
		WidgetHandler:        widgetHandler,
		WebSocketHub:         wsHub,
		TranscriptDispatcher: dispatcher,
		Logger:               sysLogger,
	}

	c.closers = append(c.closers, func() { _ = dispatcher.Close() })
	if natsPub != nil {
		c.closers = append(c.closers, natsPub.Close)
	}
	if rdb != nil {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}
	c.closers = append(c.closers, func() {
		_ = widgetLogger.Sync()
		_ = sysLogger.Sync()
	})

	return c
}

// Close releases connections in the order they were opened.
func (c *Container) Close() {
	for _, fn := range c.closers {
		fn()
	}
}

func connectRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: url,
		}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}
