package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raih/internal/config"
	"raih/internal/database"
	handlers "raih/internal/http/handler"
	"raih/internal/http/middleware"
	"raih/internal/openarena"
	"raih/internal/otel"
	"raih/internal/router"
	"raih/internal/sqlagent"
	"raih/internal/storage"
	"raih/internal/warehouse"
)

// statelessLLM opens a fresh chat session per call so concurrent requests
// never share history.
type statelessLLM struct {
	cfg        config.OpenArenaConfig
	workflowID string
	tokens     openarena.TokenProvider
}

func (l statelessLLM) Send(ctx context.Context, query string) (string, error) {
	session := openarena.NewChat(l.cfg, l.workflowID, l.tokens, openarena.WithMaxHistory(0))
	return session.Send(ctx, query)
}

func main() {
	ctx := context.Background()

	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	shutdown, err := otel.Init(ctx, "chatbot", time.UTC)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	// Warehouse connection used for schema discovery and query execution
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to warehouse: %v", err)
	}
	defer db.Close()

	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	tokens, err := openarena.ProviderFromConfig(cfg.Auth, nil)
	if err != nil {
		log.Fatalf("failed to configure platform auth: %v", err)
	}

	llm := statelessLLM{cfg: cfg.OpenArena, workflowID: cfg.OpenArena.WorkflowID, tokens: tokens}
	ragLLM := statelessLLM{cfg: cfg.OpenArena, workflowID: cfg.OpenArena.RAGWorkflowID, tokens: tokens}

	inspector := warehouse.NewInspector(db, cfg.Database.AllowedTablePrefix)
	classifier := router.NewClassifier(ctx, llm, inspector)
	sqlAgent := sqlagent.New(inspector, llm, objStore)
	ragAgent := router.AgentFunc(ragLLM.Send)

	rt := router.NewRouterAgent(sqlAgent, ragAgent, classifier, cfg.Chatbot.ConfidenceThreshold)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())

	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}
	app.Use(promMW.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterChatbotRoutes(app, db, rt, objStore)

	addr := ":" + cfg.Chatbot.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
