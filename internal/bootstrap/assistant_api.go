package bootstrap

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	httpin "assistant_server/adapter/in/http"
	"assistant_server/config"
	"assistant_server/infra/middleware"
)

// NewAPI builds the HTTP server and its dependency graph.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               "assistant-server",
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          middleware.ErrorHandler(),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: cfg.IsProduction(),
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		AllowCredentials: true,
	}))

	authHandler := httpin.NewAuthHandler(deps.AuthService)
	chatHandler := httpin.NewChatHandler(deps.ChatService)
	oauthHandler := httpin.NewOAuthHandler(deps.Credentials)

	// Public routes.
	httpin.RegisterHealth(app)
	authHandler.Register(app)
	oauthHandler.RegisterPublic(app)

	// Legacy top-level chat endpoint.
	jwtAuth := middleware.JWTAuth(cfg.JWTSecret)
	app.Post("/chat/reply", jwtAuth, chatHandler.Reply)

	// Versioned API.
	api := app.Group("/api/v1", jwtAuth)
	chatHandler.Register(api)
	oauthHandler.Register(api)

	return app, cleanup, nil
}
