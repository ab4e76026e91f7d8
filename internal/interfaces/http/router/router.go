// Package router assembles the gin engine: global middleware, system
// probes, and the versioned API surface behind caller identity.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/interfaces/http/handler"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	System     *handler.SystemHandler
	Events     *handler.EventHandler
	Sync       *handler.SyncHandler
	Rollback   *handler.RollbackHandler
	RateLimits *handler.RateLimitHandler
	Changes    *handler.ChangeHandler
	Alerts     *handler.AlertHandler
}

// Config tunes the router's middleware stack.
type Config struct {
	Mode           string
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
}

// New builds the gin engine with the full middleware stack and all routes
// mounted. System probes sit outside the identity requirement; everything
// under /api/v1 demands an X-User-ID header.
func New(log *zap.Logger, cfg Config, h Handlers) (*gin.Engine, error) {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	// Probes stay reachable without identity so orchestrators can poll them.
	probes := engine.Group("/api/v1")
	h.System.RegisterRoutes(probes)

	api := engine.Group("/api/v1")
	api.Use(middleware.RequireUserID())
	h.Events.RegisterRoutes(api)
	h.Sync.RegisterRoutes(api)
	h.Rollback.RegisterRoutes(api)
	h.RateLimits.RegisterRoutes(api)
	h.Changes.RegisterRoutes(api)
	h.Alerts.RegisterRoutes(api)

	return engine, nil
}
