package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/shared/config"
	"resume-pipeline/internal/shared/metrics"
	"resume-pipeline/internal/shared/server/middleware"
	"resume-pipeline/internal/shared/server/respond"
)

// RouteRegistrar attaches a feature's routes to the engine.
type RouteRegistrar interface {
	RegisterRoutes(r gin.IRouter)
}

// NewRouter constructs the Gin engine with middleware, health and metrics
// routes, then lets each registrar add its own.
func NewRouter(cfg config.Config, registrars ...RouteRegistrar) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigins),
	)

	r.GET("/api/v1/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	for _, reg := range registrars {
		reg.RegisterRoutes(r)
	}
	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
