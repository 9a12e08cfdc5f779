// Package gateway is the single public entrypoint: it authenticates callers
// and forwards each route to the service that owns it.
package gateway

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novap2p/novap2p/shared/config"
	"github.com/novap2p/novap2p/shared/metrics"
	"github.com/novap2p/novap2p/shared/middleware"
	"github.com/novap2p/novap2p/shared/server"
)

// NewRouter wires every public route. verifier checks bearer tokens before
// protected requests leave the gateway.
func NewRouter(cfg *config.Config, verifier middleware.TokenVerifier, m *metrics.Metrics) (*gin.Engine, error) {
	authSvc, err := proxyTo(cfg.AuthServiceURL)
	if err != nil {
		return nil, err
	}
	userSvc, err := proxyTo(cfg.UserServiceURL)
	if err != nil {
		return nil, err
	}
	accountSvc, err := proxyTo(cfg.AccountServiceURL)
	if err != nil {
		return nil, err
	}

	router := server.NewRouter(m, cfg.IsProduction())
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	authenticated := middleware.AuthMiddleware(verifier)

	v1 := router.Group("/v1", middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))

	// Auth routes (no authentication required for sign-in and refresh)
	v1.POST("/auth/signin", authSvc)
	v1.POST("/auth/refresh", authSvc)
	v1.POST("/auth/signout", authenticated, authSvc)
	v1.GET("/auth/session", authenticated, authSvc)
	v1.GET("/auth/changes", authenticated, authSvc)

	// User routes
	v1.POST("/users", userSvc) // No auth for registration
	v1.GET("/users", authenticated, userSvc)
	v1.GET("/users/:userId", authenticated, userSvc)

	// Account routes
	accounts := v1.Group("/accounts", authenticated)
	{
		accounts.GET("", accountSvc)
		accounts.POST("", accountSvc)
		accounts.GET("/changes", accountSvc)
		accounts.GET("/:id", accountSvc)
		accounts.PATCH("/:id", accountSvc)
		accounts.DELETE("/:id", accountSvc)
	}

	return router, nil
}
