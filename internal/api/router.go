package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	"github.com/qs3c/place_rank_server/internal/api/handler"
	"github.com/qs3c/place_rank_server/internal/api/middleware"
)

type Router struct {
	jobHandler       *handler.JobHandler
	placeHandler     *handler.PlaceHandler
	healthHandler    *handler.HealthHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
	logger           *zap.Logger
}

func NewRouter(
	jobHandler *handler.JobHandler,
	placeHandler *handler.PlaceHandler,
	healthHandler *handler.HealthHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		jobHandler:       jobHandler,
		placeHandler:     placeHandler,
		healthHandler:    healthHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
		logger:           logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Logger(r.logger))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", r.healthHandler.Check)

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 同步分析
		api.POST("/places/analyze", r.placeHandler.Analyze)
		api.POST("/rankings/check", r.placeHandler.CheckRanking)

		// 异步任务
		jobs := api.Group("/jobs")
		{
			jobs.POST("/ranking", r.jobHandler.CreateRanking)
			jobs.POST("/integrated", r.jobHandler.CreateIntegrated)
			jobs.GET("", r.jobHandler.List)
			jobs.GET("/:id", r.jobHandler.Get)
			jobs.GET("/:id/results", r.jobHandler.Results)
			jobs.DELETE("/:id", r.jobHandler.Delete)
		}
	}

	return engine
}
