package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"leadchat_backend/platform/config"
	"leadchat_backend/platform/httpkit"
	"leadchat_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Handler handles provider webhook HTTP requests.
type Handler struct {
	service *Service
	cfg     config.ProviderConfig
	log     *logger.Logger
}

func NewHandler(service *Service, cfg config.ProviderConfig, log *logger.Logger) *Handler {
	return &Handler{service: service, cfg: cfg, log: log}
}

// HandleVerify answers the provider's subscription handshake.
// GET /api/v1/webhook
func (h *Handler) HandleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token != h.cfg.GetProviderVerifyToken() {
		h.log.AuthRejected("webhook-verify", "verify token mismatch", c.ClientIP())
		httpkit.Error(c, http.StatusForbidden, "verification failed", nil)
		return
	}

	c.String(http.StatusOK, challenge)
}

// HandleInbound processes a signed webhook delivery.
// POST /api/v1/webhook
//
// The provider disables the subscription after repeated non-200s, so every
// authenticated, parseable delivery returns 200 even when individual
// messages fail to ingest.
func (h *Handler) HandleInbound(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "unreadable body", nil)
		return
	}

	if !VerifySignature(h.cfg.GetProviderAppSecret(), body, c.GetHeader(signatureHeader)) {
		h.log.AuthRejected("webhook", "invalid signature", c.ClientIP())
		httpkit.Error(c, http.StatusUnauthorized, "invalid signature", nil)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}

	result := h.service.ProcessPayload(c.Request.Context(), &payload)

	c.JSON(http.StatusOK, gin.H{
		"status":     "received",
		"stored":     result.Stored,
		"duplicates": result.Duplicates,
	})
}
