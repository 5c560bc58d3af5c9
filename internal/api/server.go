package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/api/middleware"
	"github.com/licensehub/internal/api/users"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/catalog"
	"github.com/licensehub/internal/clinic"
	"github.com/licensehub/internal/config"
	"github.com/licensehub/internal/license"
	"github.com/licensehub/internal/logging"
	"github.com/licensehub/internal/metrics"
	"github.com/licensehub/internal/subscription"
	"github.com/licensehub/internal/support"
	"github.com/licensehub/internal/traffic"
	"github.com/licensehub/pkg/models"
)

// AuditLogs is the admin view of the audit trail
type AuditLogs interface {
	List(ctx context.Context, f audit.Filter) ([]models.AuditLog, int, error)
	Clear(ctx context.Context, actor models.Actor) (int64, error)
}

// TrafficLogs is the admin view of recorded requests
type TrafficLogs interface {
	List(ctx context.Context, f traffic.Filter) ([]models.TrafficLog, int, error)
	Clear(ctx context.Context, actor models.Actor) (int64, error)
}

// Deps are the services the server routes to. DB is only pinged by /health
// and may be nil.
type Deps struct {
	DB       *sql.DB
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics

	Tokens        *auth.TokenService
	Users         *users.UserService
	Licenses      *license.Service
	Clinics       *clinic.Service
	Controls      *clinic.Controls
	Subscriptions *subscription.Resolver
	Catalog       *catalog.Service
	Support       *support.Service

	AuditLogs    AuditLogs
	TrafficLogs  TrafficLogs
	TrafficQueue traffic.Enqueuer
	Stats        StatsSource
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
	deps Deps

	publicRateLimit float64
}

// NewServer creates a new API server with every route mounted
func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()
	e.HTTPErrorHandler = middleware.ErrorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(logging.RequestLogger())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(httpMetrics(deps.Metrics))
	if deps.TrafficQueue != nil {
		e.Use(traffic.Middleware(deps.TrafficQueue, auth.UserID))
	}

	server := &Server{
		echo:            e,
		port:            cfg.Server.Port,
		deps:            deps,
		publicRateLimit: cfg.Server.PublicRateLimit,
	}
	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	requireAuth := auth.RequireAuth(s.deps.Tokens)
	staff := auth.RequireRole(models.RoleAdmin, models.RoleStaff)
	admin := auth.RequireRole(models.RoleAdmin)

	s.attachPublicLicenseRoutes(s.echo.Group("/license", middleware.RateLimit(s.publicRateLimit)))
	s.echo.GET("/subscription/status", s.handleSubscriptionStatus, auth.OptionalAuth(s.deps.Tokens))

	api := s.echo.Group("/api")

	authHandlers := auth.NewAuthHandlers(s.deps.Tokens)
	ag := api.Group("/auth")
	ag.POST("/login", authHandlers.Login)
	ag.POST("/refresh", authHandlers.Refresh)
	ag.POST("/logout", authHandlers.Logout, requireAuth)
	ag.GET("/me", authHandlers.Me, requireAuth)

	s.attachLicenseRoutes(api, requireAuth, staff, admin)
	s.attachClinicRoutes(api, requireAuth, staff, admin)
	s.attachCatalogRoutes(api, requireAuth, admin)
	s.attachTicketRoutes(api.Group("/tickets", requireAuth))
	s.attachLogRoutes(api, requireAuth, admin)

	users.NewUserHandlers(s.deps.Users).Register(api.Group("/users", requireAuth, admin))
	api.GET("/stats", s.handleStats, requireAuth, admin)
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: database unreachable")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// httpMetrics counts requests by method and final status
func httpMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				c.Error(err)
			}
			m.HTTPRequest(c.Request().Method, c.Response().Status)
			return nil
		}
	}
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("api server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down api server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
