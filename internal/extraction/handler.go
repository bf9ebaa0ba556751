package extraction

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sift/internal/logger"
	"sift/internal/tenant"
	"sift/pkg/errors"
	"sift/pkg/models"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(tenant.Middleware())
	{
		tenants := v1.Group("/tenants/:tenantId")
		{
			tenants.POST("/messages", h.IngestMessages)
			tenants.POST("/extract", h.TriggerExtraction)
			tenants.GET("/messages", h.ListMessages)
			tenants.GET("/messages/count", h.CountMessages)
			tenants.GET("/export", h.ExportData)
			tenants.DELETE("/data", h.PurgeData)
		}
	}
}

type ingestRequest struct {
	Messages []models.SourceMessage `json:"messages"`
}

func (h *Handler) IngestMessages(c *gin.Context) {
	tenantID := c.Param("tenantId")

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	stats, err := h.service.Ingest(c.Request.Context(), tenantID, req.Messages)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

type extractRequest struct {
	SourceType models.SourceType `json:"source_type"`
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
}

func (h *Handler) TriggerExtraction(c *gin.Context) {
	tenantID := c.Param("tenantId")

	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	stats, err := h.service.ExtractFromSource(c.Request.Context(), tenantID, req.SourceType, req.From, req.To)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListMessages(c *gin.Context) {
	tenantID := c.Param("tenantId")
	sourceType := models.SourceType(c.Query("source_type"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.service.GetMessages(c.Request.Context(), tenantID, sourceType, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *Handler) CountMessages(c *gin.Context) {
	tenantID := c.Param("tenantId")
	sourceType := models.SourceType(c.Query("source_type"))

	count, err := h.service.CountMessages(c.Request.Context(), tenantID, sourceType)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) ExportData(c *gin.Context) {
	tenantID := c.Param("tenantId")

	export, err := h.service.ExportTenantData(c.Request.Context(), tenantID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, export)
}

func (h *Handler) PurgeData(c *gin.Context) {
	tenantID := c.Param("tenantId")
	reason := c.DefaultQuery("reason", "tenant_request")

	if err := h.service.PurgeTenantData(c.Request.Context(), tenantID, reason); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "purged", "tenant_id": tenantID})
}
