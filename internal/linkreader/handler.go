// Package linkreader accepts hand-submitted links over HTTP and queues them
// for the scraper.
package linkreader

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	infraconfig "github.com/skehlet/dailymail/infrastructure/config"
	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/metrics"
)

// Publisher sends records to the scraper queue.
type Publisher interface {
	Send(ctx context.Context, body any) (string, error)
}

// SubmitRequest is the POST /links body.
type SubmitRequest struct {
	URL string `json:"url" binding:"required"`
}

// Handler serves the link submission endpoints.
type Handler struct {
	publisher Publisher
	log       logger.Logger
	metrics   *metrics.Metrics
}

// NewHandler creates a Handler.
func NewHandler(publisher Publisher, log logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{publisher: publisher, log: log, metrics: m}
}

// Register mounts GET /submit, POST /links and, when gatherer is non-nil,
// GET /metrics.
func (h *Handler) Register(router *gin.Engine, gatherer prometheus.Gatherer) {
	router.GET("/submit", h.SubmitQuery)
	router.POST("/links", h.SubmitJSON)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// SubmitQuery handles GET /submit?url=.
func (h *Handler) SubmitQuery(c *gin.Context) {
	h.submit(c, c.Query("url"))
}

// SubmitJSON handles POST /links.
func (h *Handler) SubmitJSON(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"url\": \"...\"}"})
		return
	}
	h.submit(c, req.URL)
}

func (h *Handler) submit(c *gin.Context, rawURL string) {
	rawURL = strings.TrimSpace(rawURL)
	if err := infraconfig.ValidateHTTPURL("url", rawURL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := domain.Record{
		Type:      domain.RecordTypeURL,
		URL:       rawURL,
		Immediate: true,
	}

	id, err := h.publisher.Send(c.Request.Context(), rec)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue link"})
		return
	}

	h.metrics.LinkSubmitted()
	logger.FromContext(c.Request.Context()).Info("link submitted",
		logger.String("url", rawURL),
		logger.String("message_id", id),
	)

	c.JSON(http.StatusOK, gin.H{"result": "OK", "id": id})
}
