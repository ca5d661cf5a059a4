package server

import (
	"context"

	"github.com/beaconbio/beacon/internal/app/repository"
	"github.com/beaconbio/beacon/internal/app/service"
	inthttp "github.com/beaconbio/beacon/internal/http/handler"
	"github.com/beaconbio/beacon/internal/http/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles infrastructure dependencies required by the HTTP server.
type Dependencies struct {
	Logger    *zap.Logger
	Redis     *redis.Client
	Tracking  *service.TrackingService
	Analytics service.AnalyticsService
	Links     repository.LinkRepository
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New()

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}

	trackHandler := inthttp.NewTrackHandler(inthttp.TrackDeps{
		Logger:   s.deps.Logger,
		Tracking: s.deps.Tracking,
	})
	trackHandler.Register(s.app)

	analyticsHandler := inthttp.NewAnalyticsHandler(inthttp.AnalyticsDeps{
		Logger:    s.deps.Logger,
		Analytics: s.deps.Analytics,
		Links:     s.deps.Links,
		Redis:     s.deps.Redis,
	})
	analyticsHandler.Register(s.app)
}
