package bootstrap

import (
	"context"
	"strings"

	"integration_server/adapter/in/http"
	"integration_server/config"
	"integration_server/infra/middleware"
	"integration_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "integration-api",
		Pretty:  cfg.IsDevelopment(),
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := NewApp(cfg, deps)
	logger.Info("API server initialized successfully")
	return app, cleanup, nil
}

// NewApp builds the router over already constructed dependencies.
func NewApp(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
		ServerHeader:          "",
		DisableDefaultDate:    true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.Recover())
	app.Use(middleware.SecurityHeaders())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	// AllowCredentials requires explicit origins
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		allowOrigins = "*"
		allowCredentials = false
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,Retry-After",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	checks := map[string]http.HealthChecker{
		"redis": http.CheckFunc(func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }),
	}
	if deps.DB != nil {
		checks["postgres"] = deps.DB
	}
	if deps.MongoDB != nil {
		checks["mongodb"] = http.CheckFunc(func(ctx context.Context) error { return deps.MongoDB.Ping(ctx, nil) })
	}
	http.NewHealthHandler(checks).Register(app)

	api := app.Group("/api/v1", middleware.NoCache())

	connectionHandler := http.NewConnectionHandler(deps.OAuthService, cfg.FrontendURL)
	// Providers redirect here without our JWT.
	connectionHandler.RegisterPublic(api)

	protected := api.Group("", middleware.JWTAuth(cfg.JWTSecret))
	connectionHandler.Register(protected)
	http.NewProviderHandler(deps.GatewayService, deps.SummaryService).Register(protected)
	http.NewAIHandler(deps.AIService).Register(protected, middleware.RateLimit(deps.AILimiter, "ai"))

	return app
}
