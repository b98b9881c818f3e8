package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tatamiapp/tatami-backend/internal/clients/redis"
	"github.com/tatamiapp/tatami-backend/internal/db"
	"github.com/tatamiapp/tatami-backend/internal/handlers"
	"github.com/tatamiapp/tatami-backend/internal/knowledge"
	"github.com/tatamiapp/tatami-backend/internal/observability"
	"github.com/tatamiapp/tatami-backend/internal/platform/envutil"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
	"github.com/tatamiapp/tatami-backend/internal/platform/neo4jdb"
	"github.com/tatamiapp/tatami-backend/internal/platform/openai"
	"github.com/tatamiapp/tatami-backend/internal/repos"
	"github.com/tatamiapp/tatami-backend/internal/server"
	"github.com/tatamiapp/tatami-backend/internal/services"
	"github.com/tatamiapp/tatami-backend/internal/sse"
)

func main() {
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "tatami-backend",
		Environment: envutil.Str("APP_ENV", "development"),
		Version:     envutil.Str("APP_VERSION", "dev"),
	})

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Knowledge graph
	graphClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Neo4j init failed", "error", err)
		os.Exit(1)
	}
	if graphClient != nil {
		defer graphClient.Close(ctx)
	}
	knowledgeStore := knowledge.NewGraphStore(graphClient, log)

	// Repos
	log.Info("Setting up repos...")
	lessonRepo := repos.NewLessonRepo(thePG, log)
	compileRunRepo := repos.NewCompileRunRepo(thePG, log)
	profileRepo := repos.NewProfileRepo(thePG, log)
	callLogRepo := repos.NewLLMCallLogRepo(thePG, log)

	// SSE + cross-replica progress fanout
	log.Info("Setting up SSE hub...")
	sseHub := sse.NewHub(log)

	var progressBus redis.ProgressBus
	if envutil.Str("REDIS_ADDR", "") != "" {
		progressBus, err = redis.NewProgressBus(log)
		if err != nil {
			log.Warn("Redis progress bus init failed, running single-instance", "error", err)
		} else {
			defer progressBus.Close()
			if err := progressBus.StartForwarder(ctx, sseHub.Broadcast); err != nil {
				log.Warn("Progress forwarder start failed", "error", err)
			}
		}
	}

	// Provider
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("OpenAI client init failed", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services...")
	compileService := services.NewLessonCompileService(
		log,
		openaiClient,
		knowledgeStore,
		lessonRepo,
		compileRunRepo,
		profileRepo,
		callLogRepo,
		sseHub,
		progressBus,
	)

	// Handlers + router
	log.Info("Setting up handlers...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:        "tatami-backend",
		HealthcheckHandler: handlers.NewHealthcheckHandler(),
		LessonHandler:      handlers.NewLessonHandler(compileService),
		ProfileHandler:     handlers.NewProfileHandler(profileRepo),
		EventsHandler:      handlers.NewEventsHandler(sseHub),
	})

	port := envutil.Str("PORT", "8080")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: stop accepting requests, let in-flight compilations
	// finish, then flush traces.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown failed", "error", err)
	}
	compileService.Wait()
	if otelShutdown != nil {
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("Otel shutdown failed", "error", err)
		}
	}
	log.Info("Shutdown complete")
}
