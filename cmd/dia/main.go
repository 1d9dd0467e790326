package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raih/internal/config"
	"raih/internal/dia"
	handlers "raih/internal/http/handler"
	"raih/internal/http/middleware"
	"raih/internal/openarena"
	"raih/internal/otel"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	shutdown, err := otel.Init(ctx, "dia", time.UTC)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	tokens, err := openarena.ProviderFromConfig(cfg.Auth, nil)
	if err != nil {
		log.Fatalf("failed to configure platform auth: %v", err)
	}

	files := openarena.NewFileClient(cfg.OpenArena, tokens)
	// A fresh chat per assessment keeps uploaded files scoped to one request.
	newChat := func() dia.Chat {
		return openarena.NewChat(cfg.OpenArena, cfg.OpenArena.WorkflowID, tokens)
	}

	svc := dia.NewService(files, newChat, cfg.OpenArena.WorkflowID, cfg.DIA.UploadsDir)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())
	// The assessment frontend is served from a separate origin in some deployments.
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.DIA.CORSOrigins}))

	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}
	app.Use(promMW.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterDIARoutes(app, svc, cfg.DIA.StaticDir)

	addr := ":" + cfg.DIA.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
