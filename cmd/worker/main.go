package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"leadchat_backend/internal/agent"
	"leadchat_backend/internal/booking"
	"leadchat_backend/internal/engine"
	"leadchat_backend/internal/events"
	"leadchat_backend/internal/notification"
	"leadchat_backend/internal/queue"
	"leadchat_backend/internal/whatsapp"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/db"
	"leadchat_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting queue worker", "env", cfg.Env, "queue", cfg.QueueName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	redisOpt, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid redis url", "error", err)
		panic("invalid redis url: " + err.Error())
	}
	rdb := goredis.NewClient(redisOpt)
	defer func() {
		_ = rdb.Close()
	}()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Drain()

	queueClient, err := queue.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize queue client", "error", err)
		panic("failed to initialize queue client: " + err.Error())
	}
	defer func() {
		_ = queueClient.Close()
	}()

	whatsappClient := whatsapp.NewClient(cfg, log)
	if whatsappClient == nil {
		log.Warn("provider send credentials not configured; outbound messages disabled")
	}

	bookingService := booking.NewService(booking.NewRepository(pool), eventBus, log)

	var decider agent.Decider
	var classifier agent.IntentClassifier
	if cfg.GeminiAPIKey != "" {
		decisionAgent, err := agent.NewDecisionAgent(cfg, log)
		if err != nil {
			log.Error("failed to initialize decision agent", "error", err)
			panic("failed to initialize decision agent: " + err.Error())
		}
		decider = decisionAgent
		classifier = agent.NewClassifier(cfg, log)
	} else {
		log.Warn("GEMINI_API_KEY not configured; fallback tree handles all turns")
	}

	engineModule := engine.NewModule(pool, rdb, cfg, whatsappClient, bookingService, queueClient, decider, classifier, eventBus, log)

	notificationModule := notification.New(cfg, whatsappClient, notification.NewSMTPSender(cfg), log)
	notificationModule.RegisterHandlers(eventBus)

	worker, err := queue.NewWorker(cfg, engineModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize queue worker", "error", err)
		panic("failed to initialize queue worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("queue worker stopped")
}
