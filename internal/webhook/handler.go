package webhook

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/pkg/logger"
)

// Handler is the thin gin surface for POST /webhooks/<processor-id>.
// It is the only inbound HTTP boundary the core owns; request routing and
// validation for the platform API proper are out of scope.
type Handler struct {
	ingestor *Ingestor
}

func NewHandler(ingestor *Ingestor) *Handler {
	return &Handler{ingestor: ingestor}
}

// Register mounts the webhook route.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/webhooks/:processor", h.receive)
}

// Canonical header names plus the synonyms processors vary across.
var (
	signatureHeaders = []string{"X-Webhook-Signature", "X-Signature", "Webhook-Signature"}
	timestampHeaders = []string{"X-Webhook-Timestamp", "X-Timestamp", "Webhook-Timestamp"}
)

func firstHeader(c *gin.Context, names []string) string {
	for _, n := range names {
		if v := c.GetHeader(n); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) receive(c *gin.Context) {
	correlationID := uuid.NewString()
	// The same id goes into the response envelope and every log line, so
	// internal detail stays findable from the caller's correlation id.
	ctx := context.WithValue(c.Request.Context(), logger.CorrelationIDKey, correlationID)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "correlation_id": correlationID})
		return
	}

	status := h.ingestor.Ingest(ctx, entities.InboundWebhook{
		Processor:       c.Param("processor"),
		RawBody:         body,
		SignatureHeader: firstHeader(c, signatureHeaders),
		TimestampHeader: firstHeader(c, timestampHeaders),
		ContentType:     c.ContentType(),
	})

	logger.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, status, 0, c.ClientIP())

	switch status {
	case http.StatusOK:
		c.JSON(http.StatusOK, gin.H{"success": true, "correlation_id": correlationID})
	case http.StatusUnauthorized:
		// No detail on what failed.
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication_failed", "correlation_id": correlationID})
	case http.StatusServiceUnavailable:
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "transient", "retry_after_ms": 5000, "correlation_id": correlationID})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "correlation_id": correlationID})
	}
}
