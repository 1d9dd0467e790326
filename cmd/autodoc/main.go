package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raih/docs"
	"raih/internal/autodoc"
	"raih/internal/config"
	"raih/internal/database"
	"raih/internal/database/migration"
	handlers "raih/internal/http/handler"
	"raih/internal/http/middleware"
	"raih/internal/openarena"
	"raih/internal/otel"
	"raih/internal/repository/postgres"
	"raih/internal/storage"
)

// @title Documentation Generator API
// @version 1.0
// @BasePath /
func main() {
	ctx := context.Background()

	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	shutdown, err := otel.Init(ctx, "autodoc", time.UTC)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, time.UTC, cfg.Database.Host); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	tokens, err := openarena.ProviderFromConfig(cfg.Auth, nil)
	if err != nil {
		log.Fatalf("failed to configure platform auth: %v", err)
	}

	// One chat session per generation so runs never share history.
	chat := func(ctx context.Context, systemPrompt, query string) (string, error) {
		session := openarena.NewChat(cfg.OpenArena, cfg.OpenArena.WorkflowID, tokens,
			openarena.WithSystemPrompt(systemPrompt))
		return session.Send(ctx, query)
	}

	genRepo := postgres.NewGenerationPostgres(db)
	generator := autodoc.NewGenerator(chat, cfg.Autodoc.OutputDir,
		cfg.Autodoc.MaxFileSizeKB, cfg.Autodoc.MaxTotalSizeMB, genRepo, objStore)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())

	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}
	app.Use(promMW.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Register HTTP routes with injected service
	handlers.RegisterAutodocRoutes(app, db, generator, genRepo, objStore, cfg.Autodoc.UploadDir)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Autodoc.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
