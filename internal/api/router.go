package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/roastpage/internal/api/handler"
	"github.com/timmy/roastpage/internal/api/middleware"
	"github.com/timmy/roastpage/internal/config"
	"github.com/timmy/roastpage/internal/events"
	"github.com/timmy/roastpage/internal/logger"
	"github.com/timmy/roastpage/internal/service"
)

// RoastAPI is everything the roast routes need from the roast service.
type RoastAPI interface {
	handler.RoastCommands
	handler.RoastAdmin
}

// Dependencies groups what SetupRouter wires into handlers.
type Dependencies struct {
	Roasts  RoastAPI
	Reader  *service.ReaderService
	Hub     *events.Hub
	DB      handler.Pinger
	Workers handler.StatsProvider
	Logger  *logger.Logger
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps Dependencies, cfg *config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	caps := deps.Reader.Capabilities()
	healthHandler := handler.NewHealthHandler(deps.DB, deps.Workers, caps)
	roastHandler := handler.NewRoastHandler(deps.Roasts, deps.Reader)
	eventsHandler := handler.NewEventsHandler(deps.Hub, deps.Reader)
	adminHandler := handler.NewAdminHandler(deps.Roasts)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/roasts", roastHandler.CreateRoast)
		v1.GET("/roasts", roastHandler.ListRoasts)
		v1.GET("/roasts/:id", roastHandler.GetRoast)
		v1.POST("/roasts/:id/retry", roastHandler.RetryRoast)
		v1.GET("/roasts/:id/events", eventsHandler.StreamRoast)

		admin := v1.Group("/admin", middleware.AdminAuth(cfg.AdminToken))
		admin.DELETE("/roasts/:id", adminHandler.DeleteRoast)
		admin.POST("/roasts/:id/simulate", adminHandler.SimulateRoast)
	}

	return r
}
