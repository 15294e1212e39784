package main

import (
	"telephone-billing/internal/auth"
	"telephone-billing/internal/httpapi"
	"telephone-billing/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
// A nil authManager leaves the API open (allowed outside production only).
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authManager *auth.Manager) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var recordsMW, billsMW []gin.HandlerFunc
	if authManager != nil {
		authMW := auth.RequireAccessToken(authManager)
		recordsMW = []gin.HandlerFunc{authMW, rbac.RequireAnyRole(rbac.RoleCarrier)}
		billsMW = []gin.HandlerFunc{
			authMW,
			rbac.RequireAnyRole(rbac.RoleBilling, rbac.RoleSubscriber),
			rbac.RequireOwnSubscriber("subscriber"),
		}
	}

	h.Register(r, recordsMW, billsMW)
}
