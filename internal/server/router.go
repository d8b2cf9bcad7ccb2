package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dverasc/datalens-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName    string
	DatasetHandler *handlers.DatasetHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/datasets/upload", cfg.DatasetHandler.Upload)
		api.GET("/datasets", cfg.DatasetHandler.List)
		api.DELETE("/datasets/:id", cfg.DatasetHandler.Delete)
		api.GET("/datasets/:id/download", cfg.DatasetHandler.Download)
		api.GET("/datasets/:id/summary", cfg.DatasetHandler.Summary)
		api.GET("/datasets/:id/chart", cfg.DatasetHandler.Chart)
	}

	return router
}
