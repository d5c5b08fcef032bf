package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/audit"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/ws"
)

type Dependencies struct {
	Detector  provider.FaceDetector
	WSConfig  ws.Config
	Token     string
	RateLimit middleware.RateLimiterConfig
	// Audit records session opens, captures and photo checks. Defaults to
	// the router's logger.
	Audit audit.Logger
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
	wsHub       *ws.Hub
	cancelHub   context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "DermaLens Detection Relay",
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Only the health endpoints are served without a detector
	if r.deps == nil || r.deps.Detector == nil {
		healthHandler := handler.NewHealthHandler(nil)
		r.app.Get("/health", healthHandler.Health)
		r.app.Get("/ready", healthHandler.Ready)
		return
	}

	// Detection hub
	r.wsHub = ws.NewHub()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	r.cancelHub = hubCancel
	go r.wsHub.Run(hubCtx)

	healthHandler := handler.NewHealthHandler(r.wsHub)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	auth := middleware.Auth(r.deps.Token)

	auditLog := r.deps.Audit
	if auditLog == nil {
		auditLog = audit.NewSlogLogger(r.logger)
	}

	// Session opens are rate limited per client IP
	r.rateLimiter = middleware.NewRateLimiter(r.deps.RateLimit)

	// WebSocket endpoint
	r.app.Get("/ws/camera/:"+ws.ParamSessionID,
		r.rateLimiter.Handler(),
		auth,
		ws.UpgradeMiddleware(),
		auditSessionOpen(auditLog),
		ws.Handler(r.wsHub, r.deps.Detector, r.deps.WSConfig, r.logger),
	)

	// API v1 group with authentication
	v1 := r.app.Group("/v1", auth)

	sessionHandler := handler.NewSessionHandler(r.wsHub, auditLog, r.logger)
	v1.Get("/sessions", sessionHandler.List)
	v1.Post("/sessions/:id/capture", sessionHandler.Capture)

	detectHandler := handler.NewDetectHandler(r.deps.Detector, r.deps.WSConfig, auditLog, r.logger)
	v1.Post("/detect", detectHandler.Detect)
}

// auditSessionOpen records every accepted upgrade request
func auditSessionOpen(auditLog audit.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_ = auditLog.Log(c.UserContext(), audit.Event{
			EventType: audit.EventSessionOpened,
			SessionID: c.Params(ws.ParamSessionID),
			Success:   true,
			IPAddress: c.IP(),
			UserAgent: c.Get(fiber.HeaderUserAgent),
		})
		return c.Next()
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

// Hub returns the detection hub, nil until Setup has run with a detector
func (r *Router) Hub() *ws.Hub {
	return r.wsHub
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop detection hub, closing every session
	if r.cancelHub != nil {
		r.cancelHub()
	}

	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
