// Package webhook provides the provider-facing ingestion bounded context.
// This file defines the module that encapsulates webhook setup and route registration.
package webhook

import (
	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/internal/events"
	apphttp "leadchat_backend/internal/http"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(pool *pgxpool.Pool, enqueuer queue.Enqueuer, cfg config.ProviderConfig, eventBus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	service := NewService(repo, enqueuer, eventBus, log)
	handler := NewHandler(service, cfg, log)

	return &Module{handler: handler}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
// Authentication is the provider's HMAC signature, not consumer auth, so
// the routes live on the rate-limited public webhook group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhook.GET("", m.handler.HandleVerify)
	ctx.Webhook.POST("", m.handler.HandleInbound)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
