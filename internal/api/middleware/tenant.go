package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/tenant"
)

// Header names for tenant routing. Authentication is handled upstream;
// the user header is trusted as-is.
const (
	UserHeader   = "X-Meld-User"
	TenantHeader = "X-Meld-Tenant"
)

// TenantResolver resolves the request's tenant and installs it into
// the request context. A missing tenant header selects the default
// tenant; an unknown one is rejected.
func TenantResolver(tenants *tenant.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader(UserHeader)
		name, err := tenants.Resolve(user, c.GetHeader(TenantHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}

		ctx := meld.WithCtx(c.Request.Context(), meld.Ctx{User: user, Tenant: name})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
