package tenant

import (
	"github.com/gin-gonic/gin"
)

// Middleware binds the caller's authenticated tenant identity from the
// X-Tenant-ID header into the request context. Which tenant's data the
// request may touch is decided later, against the path parameter.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tenantID := c.GetHeader("X-Tenant-ID"); tenantID != "" {
			ctx := WithTenant(c.Request.Context(), tenantID, c.GetHeader("X-Tenant-Identity"))
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
