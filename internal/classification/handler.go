package classification

import (
	"net/http"
	"strconv"

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
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(tenant.Middleware())
	{
		tenants := v1.Group("/tenants/:tenantId")
		{
			tenants.GET("/classifications", h.ListClassifications)
			tenants.GET("/classifications/counts", h.CountByCategory)
		}
	}
}

func (h *Handler) ListClassifications(c *gin.Context) {
	tenantID := c.Param("tenantId")
	category := models.Category(c.Query("category"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	results, err := h.service.GetClassifications(c.Request.Context(), tenantID, category, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"classifications": results,
		"count":           len(results),
	})
}

func (h *Handler) CountByCategory(c *gin.Context) {
	tenantID := c.Param("tenantId")

	counts, err := h.service.CountByCategory(c.Request.Context(), tenantID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"counts": counts})
}
