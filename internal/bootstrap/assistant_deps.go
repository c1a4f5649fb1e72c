package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"

	"assistant_server/adapter/out/mongodb"
	"assistant_server/adapter/out/persistence"
	"assistant_server/adapter/out/provider"
	"assistant_server/config"
	"assistant_server/core/agent"
	"assistant_server/core/agent/llm"
	"assistant_server/core/agent/session"
	"assistant_server/core/agent/tools"
	"assistant_server/core/port/in"
	"assistant_server/core/port/out"
	"assistant_server/core/service/auth"
	"assistant_server/core/service/chat"
	"assistant_server/infra/database"
	"assistant_server/pkg/apperr"
	"assistant_server/pkg/cache"
	"assistant_server/pkg/logger"
)

const oauthStateTTL = 10 * time.Minute

// Dependencies holds every wired component of the service.
type Dependencies struct {
	Config *config.Config

	PgxPool *pgxpool.Pool
	DB      *sqlx.DB
	Redis   *redis.Client
	Cache   *cache.RedisCache
	Mongo   *mongo.Client

	Store       *session.Store
	Gate        *session.Gate
	Credentials *auth.CredentialProvider
	AuthService in.AuthService
	ChatService in.ChatService
}

// NewDependencies builds the dependency graph. The returned cleanup closes
// everything in reverse order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, apperr.ConfigError("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, nil, apperr.ConfigError("JWT_SECRET is required")
	}

	ctx := context.Background()
	log := logger.Default().WithField("component", "bootstrap")

	pgxPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		pgxPool.Close()
		return nil, nil, err
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		db.Close()
		pgxPool.Close()
		return nil, nil, err
	}
	redisCache := cache.NewRedisCache(redisClient)

	var mongoClient *mongo.Client
	var archive out.ConversationArchivePort
	if cfg.ArchiveEnabled && cfg.MongoDBURL != "" {
		mongoClient, err = mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			log.WithError(err).Warn("mongodb unavailable, transcript archive disabled")
		} else {
			zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
			archive = mongodb.NewConversationArchiveAdapter(mongoClient, cfg.MongoDBName, zlog)
		}
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes: []string{
			calendarapi.CalendarScope,
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}

	userRepo := persistence.NewUserAdapter(db)
	credRepo := persistence.NewCredentialAdapter(pgxPool)
	stateStore := persistence.NewRedisStateStore(redisCache, oauthStateTTL)
	credentials := auth.NewCredentialProvider(oauthConfig, credRepo, stateStore, "/api/v1/oauth/google/url")

	calendarAdapter := provider.NewGoogleCalendarAdapter(oauthConfig)
	registry := tools.NewRegistry()
	tools.RegisterCalendarTools(registry, credentials, calendarAdapter, cfg.Timezone)

	llmClient := llm.NewClient(
		cfg.OpenAIAPIKey,
		cfg.LLMModel,
		cfg.LLMMaxTokens,
		float32(cfg.LLMTemperature),
		time.Duration(cfg.LLMTimeoutSec)*time.Second,
	)
	engine := llm.NewEngine(llmClient)

	store := session.NewStore(cfg.SessionTTL)
	gate := session.NewGate(cfg.SuspendTimeout)
	orchestrator := agent.NewOrchestrator(engine, registry, store, gate, archive, cfg.Timezone, cfg.MaxToolRounds)

	authService := auth.NewService(userRepo, cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour)
	chatService := chat.NewService(orchestrator)

	deps := &Dependencies{
		Config:      cfg,
		PgxPool:     pgxPool,
		DB:          db,
		Redis:       redisClient,
		Cache:       redisCache,
		Mongo:       mongoClient,
		Store:       store,
		Gate:        gate,
		Credentials: credentials,
		AuthService: authService,
		ChatService: chatService,
	}

	cleanup := func() {
		gate.Close()
		store.Close()
		if mongoClient != nil {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := mongoClient.Disconnect(disconnectCtx); err != nil {
				log.WithError(err).Warn("mongodb disconnect failed")
			}
			cancel()
		}
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Warn("redis close failed")
		}
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("database close failed")
		}
		pgxPool.Close()
	}

	log.Info("dependencies initialized")
	return deps, cleanup, nil
}
