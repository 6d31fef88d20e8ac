// Package api provides the panel-facing HTTP API of nodelink.
// It uses the Echo framework to hand out session tokens and to proxy
// selected node agent operations on behalf of authenticated panel users.
//
// @title nodelink API
// @version 1.0
// @description Panel-side API for game server node agents.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "evalgo.org/nodelink/docs" // Import generated docs
	"evalgo.org/nodelink/internal/auth"
	"evalgo.org/nodelink/internal/config"
	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/internal/metrics"
	"evalgo.org/nodelink/internal/node"
	"evalgo.org/nodelink/internal/version"
)

// Server represents the nodelink API server.
type Server struct {
	echo       *echo.Echo
	config     *config.Config
	authority  *node.Authority
	authMiddle *auth.Middleware
	provider   *metrics.Provider
	recorder   *metrics.Recorder
	daemonOpts []daemon.Option
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes provider on /metrics and records HTTP metrics with rec.
func WithMetrics(provider *metrics.Provider, rec *metrics.Recorder) Option {
	return func(s *Server) {
		s.provider = provider
		s.recorder = rec
	}
}

// WithDaemonOptions applies opts to every node agent client the server builds.
func WithDaemonOptions(opts ...daemon.Option) Option {
	return func(s *Server) { s.daemonOpts = append(s.daemonOpts, opts...) }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new API server instance.
func New(cfg *config.Config, authority *node.Authority, opts ...Option) *Server {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug
	e.HTTPErrorHandler = HTTPErrorHandler

	server := &Server{
		echo:       e,
		config:     cfg,
		authority:  authority,
		authMiddle: auth.NewMiddleware(cfg),
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURI:       true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			s.logger.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	s.echo.Use(middleware.Recover())
	s.echo.Use(SecurityHeaders)

	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, auth.HeaderAPIKey},
		}))
	}

	s.echo.Use(middleware.RequestID())

	if s.recorder != nil {
		s.echo.Use(RecordMetrics(s.recorder))
	}

	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	s.echo.Use(ValidateContentType)
	s.echo.Use(ValidateAcceptHeader)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.provider != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.provider.Handler()))
	}

	servers := s.echo.Group("/api/user/servers/:uuid", ValidateIDFormat, s.authMiddle.RequireAuth)
	servers.POST("/jwt", s.issueWebsocketToken)
	servers.POST("/power", s.sendPower)
	servers.GET("/files", s.listFiles, ValidateQueryParams)

	// Swagger UI documentation (public - but API endpoints are still protected)
	s.echo.GET("/docs/*", echoSwagger.WrapHandler)

	admin := s.echo.Group("/api/admin/nodes/:node", s.authMiddle.RequireAuth, s.authMiddle.RequireAdmin)
	admin.GET("/system", s.nodeSystem)
	admin.GET("/config", s.nodeConfig)
}

// ServeHTTP lets the server be mounted or tested without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.logger.Info("starting nodelink API server",
		"address", addr,
		"tls", s.config.Server.TLSEnabled,
		"debug", s.config.Server.Debug,
	)

	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	var err error
	if s.config.Server.TLSEnabled {
		err = s.echo.StartTLS(addr, s.config.Server.TLSCert, s.config.Server.TLSKey)
	} else {
		err = s.echo.Start(addr)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down nodelink API server")

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

// healthCheck handles health check requests.
// @Summary Health check
// @Description Report service health and the number of configured nodes
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	targets, err := s.authority.Resolver().Targets(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:  "unhealthy",
			Service: "nodelink",
			Version: version.Version,
			Error:   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: "nodelink",
		Version: version.Version,
		Nodes:   len(targets),
	})
}
