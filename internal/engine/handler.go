package engine

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/httpkit"
	"leadchat_backend/platform/logger"
	"leadchat_backend/platform/validator"
)

// Handler is the HTTP consumer surface: the queue dispatcher (or an
// operator replaying a job) POSTs the task payload here.
type Handler struct {
	service  *Service
	auth     *Authenticator
	validate *validator.Validator
	log      *logger.Logger
}

func NewHandler(service *Service, auth *Authenticator, log *logger.Logger) *Handler {
	return &Handler{service: service, auth: auth, validate: validator.New(), log: log}
}

// HandleProcess processes one queued message synchronously.
// POST /api/v1/engine/process
//
// Contract with the dispatcher: 401 means bad auth (retryable after key
// rotation), 404 means the job can never succeed, 200 means the job is
// consumed regardless of outcome.
func (h *Handler) HandleProcess(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "unreadable body", nil)
		return
	}

	surface, err := h.auth.Authenticate(
		c.GetHeader(operatorKeyHeader),
		c.GetHeader(signatureJWTHeader),
		body,
	)
	if err != nil {
		h.log.AuthRejected("engine-consumer", err.Error(), c.ClientIP())
		httpkit.Error(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var payload queue.ProcessMessagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	outcome, err := h.service.Process(c.Request.Context(), payload)
	if errors.Is(err, repository.ErrConversationNotFound) {
		httpkit.Error(c, http.StatusNotFound, "conversation not found", nil)
		return
	}
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	h.log.Debug("consumer request processed", "surface", string(surface), "outcome", string(outcome))
	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}
