package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tatamiapp/tatami-backend/internal/handlers"
	"github.com/tatamiapp/tatami-backend/internal/platform/envutil"
)

type RouterConfig struct {
	ServiceName        string
	HealthcheckHandler *handlers.HealthcheckHandler
	LessonHandler      *handlers.LessonHandler
	ProfileHandler     *handlers.ProfileHandler
	EventsHandler      *handlers.EventsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(attachTraceContext())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", cfg.HealthcheckHandler.Healthcheck)

	api := router.Group("/api")
	{
		// Compilation
		api.POST("/lessons/compile", cfg.LessonHandler.Compile)
		api.GET("/lessons/latest", cfg.LessonHandler.GetLatestLesson)
		api.GET("/lessons/:id", cfg.LessonHandler.GetLesson)
		api.POST("/lessons/:id/regenerate", cfg.LessonHandler.Regenerate)
		api.GET("/runs/:id", cfg.LessonHandler.GetRun)

		// Progress stream
		api.GET("/events", cfg.EventsHandler.Stream)

		// Personalization
		api.GET("/users/:id/profile", cfg.ProfileHandler.Get)
		api.PUT("/users/:id/profile", cfg.ProfileHandler.Upsert)
	}

	return router
}

func allowedOrigins() []string {
	raw := envutil.Str("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
