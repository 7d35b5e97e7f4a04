// Package engine module wiring and route registration.
package engine

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"leadchat_backend/internal/agent"
	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/internal/events"
	apphttp "leadchat_backend/internal/http"
	"leadchat_backend/internal/queue"
	"leadchat_backend/internal/whatsapp"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
)

// ModuleConfig combines the config slices the engine module needs.
type ModuleConfig interface {
	config.QueueAuthConfig
	config.RateLimitConfig
	config.FunnelConfig
}

// Module is the engine bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule wires the engine: classifier, router, executor, service, and
// the consumer endpoint. decider and tier1 may be nil when no model is
// configured; the fallback tree then handles every turn.
func NewModule(
	pool *pgxpool.Pool,
	rdb redis.UniversalClient,
	cfg ModuleConfig,
	sender whatsapp.Sender,
	bookings BookingProvider,
	enqueuer queue.Enqueuer,
	decider agent.Decider,
	tier1 agent.IntentClassifier,
	eventBus events.Bus,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	limiter := NewRedisRateLimiter(rdb, cfg, log)
	classifier := NewClassifier(tier1, log)
	fallback := NewFallbackTree(cfg)
	router := NewRouter(decider, fallback, log)
	executor := NewExecutor(sender, bookings, enqueuer, eventBus, cfg, log)
	service := NewService(repo, limiter, classifier, router, executor, eventBus, log)
	handler := NewHandler(service, NewAuthenticator(cfg), log)

	return &Module{service: service, handler: handler}
}

// Service exposes the engine service for the queue worker.
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "engine"
}

// RegisterRoutes mounts the consumer endpoint. Auth is handled inside the
// handler because it is body-bound (queue signatures sign the payload).
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/engine/process", m.handler.HandleProcess)
}

// Compile-time checks.
var (
	_ apphttp.Module  = (*Module)(nil)
	_ queue.Processor = (*Service)(nil)
)
