package bootstrap

import (
	"context"
	"fmt"
	"time"

	"integration_server/adapter/out/mongodb"
	"integration_server/adapter/out/persistence"
	"integration_server/adapter/out/provider/gcalendar"
	"integration_server/adapter/out/provider/gmail"
	"integration_server/adapter/out/provider/slack"
	"integration_server/config"
	"integration_server/core/agent/llm"
	"integration_server/core/port/out"
	"integration_server/core/service/ai"
	"integration_server/core/service/auth"
	"integration_server/core/service/gateway"
	"integration_server/core/service/summary"
	"integration_server/infra/database"
	"integration_server/pkg/crypto"
	"integration_server/pkg/httputil"
	"integration_server/pkg/logger"
	"integration_server/pkg/ratelimit"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	storeMongo    = "mongo"
	storePostgres = "postgres"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	ConnectionRepo out.ConnectionRepository
	StateStore     out.OAuthStateStore

	// Services
	OAuthService   *auth.OAuthService
	GatewayService *gateway.Service
	SummaryService *summary.Service
	AIService      *ai.Service

	// Agent
	LLMClient *llm.Client

	AILimiter ratelimit.Limiter
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	ctx := context.Background()
	deps := &Dependencies{Config: cfg}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if cfg.EncryptionKey == "" {
		return fail(fmt.Errorf("ENCRYPTION_KEY is required"))
	}
	enc, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
	if err != nil {
		return fail(fmt.Errorf("init encryptor: %w", err))
	}
	tokens := crypto.NewTokenCodec(enc)

	// Redis holds OAuth states, so it is required.
	if cfg.RedisURL == "" {
		return fail(fmt.Errorf("REDIS_URL is required"))
	}
	redisClient, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fail(err)
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })
	deps.StateStore = persistence.NewRedisOAuthStateStore(redisClient)
	logger.Info("Redis connected")

	switch cfg.ConnectionStore {
	case storeMongo:
		client, db, err := database.NewMongo(ctx, cfg.MongoDBURL, cfg.MongoDBName)
		if err != nil {
			return fail(err)
		}
		deps.MongoDB = client
		cleanups = append(cleanups, func() { _ = client.Disconnect(context.Background()) })

		repo := mongodb.NewConnectionAdapter(db, tokens)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return fail(fmt.Errorf("ensure mongo indexes: %w", err))
		}
		deps.ConnectionRepo = repo
		logger.Info("Connection store: MongoDB (%s)", cfg.MongoDBName)

	case storePostgres:
		pool, err := database.NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return fail(err)
		}
		deps.DB = pool
		cleanups = append(cleanups, pool.Close)

		sqlDB := database.NewSQLX(pool)
		cleanups = append(cleanups, func() { _ = sqlDB.Close() })

		repo := persistence.NewConnectionAdapter(sqlDB, tokens)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("ensure postgres schema: %w", err))
		}
		deps.ConnectionRepo = repo
		logger.Info("Connection store: PostgreSQL")

	default:
		return fail(fmt.Errorf("unknown CONNECTION_STORE %q", cfg.ConnectionStore))
	}

	googleHTTP := httputil.NewClient(httputil.GoogleClientConfig(cfg.ProviderTimeout()))
	slackHTTP := httputil.NewClient(httputil.SlackClientConfig(cfg.ProviderTimeout()))

	deps.OAuthService = auth.NewOAuthService(deps.ConnectionRepo, deps.StateStore, auth.Config{
		Google: auth.ProviderConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		},
		Slack: auth.ProviderConfig{
			ClientID:     cfg.SlackClientID,
			ClientSecret: cfg.SlackClientSecret,
			RedirectURL:  cfg.SlackRedirectURL,
		},
		StateTTL:   cfg.OAuthStateTTL(),
		HTTPClient: googleHTTP,
	})

	deps.GatewayService = gateway.NewService(
		deps.OAuthService,
		deps.ConnectionRepo,
		slack.NewAdapter(slack.Config{HTTPClient: slackHTTP}),
		gmail.NewAdapter(gmail.Config{HTTPClient: googleHTTP}),
		gcalendar.NewAdapter(gcalendar.Config{HTTPClient: googleHTTP}),
		gateway.Config{CallTimeout: cfg.ProviderTimeout()},
	)

	openaiHTTP := httputil.NewClient(httputil.OpenAIClientConfig(cfg.LLMTimeout()))
	deps.LLMClient = llm.NewClient(
		llm.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, openaiHTTP),
		llm.ClientConfig{
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.LLMTimeout(),
		},
	)
	if !deps.LLMClient.Available() {
		logger.Warn("OPENAI_API_KEY not set, AI routes will return PROVIDER_UNAVAILABLE")
	}

	deps.SummaryService = summary.NewService(deps.GatewayService, deps.LLMClient)
	deps.AIService = ai.NewService(deps.LLMClient)
	deps.AILimiter = ratelimit.NewSlidingWindowLimiter(redisClient, cfg.AIRateLimitPerMin, time.Minute)

	logger.Info("Dependencies initialized")
	return deps, cleanup, nil
}
