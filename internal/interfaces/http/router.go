// Package http assembles the gin router and HTTP server.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/ThreatCanvas/internal/config"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	prommetrics "github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ThreatCanvas/internal/interfaces/http/handlers"
	"github.com/turtacn/ThreatCanvas/internal/interfaces/http/middleware"
)

// RouterDeps carries everything the router mounts.  Handlers for optional
// subsystems (assistant, search, ingest) tolerate nil services and answer
// 503 instead.
type RouterDeps struct {
	Config   *config.Config
	Logger   logging.Logger
	Metrics  *prommetrics.Metrics
	Registry *prometheus.Registry

	ThreatModels *handlers.ThreatModelHandler
	Merge        *handlers.MergeHandler
	Assistant    *handlers.AssistantHandler
	Reports      *handlers.ReportHandler
	Search       *handlers.SearchHandler
	Health       *handlers.HealthHandler
}

// NewRouter builds the gin engine with all routes and middleware mounted.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(ginMode(deps.Config.Server.Mode))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(deps.Logger.Named("http"), deps.Metrics))

	r.GET("/healthz", deps.Health.Live)
	r.GET("/readyz", deps.Health.Ready)
	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.APIKeyAuth(deps.Config.Auth))
	{
		models := api.Group("/threat-models")
		models.POST("", deps.ThreatModels.Create)
		models.GET("", deps.ThreatModels.List)
		models.GET("/:id", deps.ThreatModels.Get)
		models.PUT("/:id", deps.ThreatModels.Update)
		models.DELETE("/:id", deps.ThreatModels.Delete)

		models.POST("/:id/merge", deps.Merge.Merge)
		models.POST("/:id/reports", deps.Reports.Generate)
		models.POST("/:id/ingest", deps.Reports.Ingest)
		models.POST("/:id/threat-suggestions", deps.Assistant.SuggestThreats)

		api.POST("/assistant/chat", deps.Assistant.Chat)
		api.GET("/threats/search", deps.Search.Search)
	}

	return r
}

func ginMode(mode string) string {
	switch mode {
	case "debug":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
