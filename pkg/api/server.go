// Package api implements VibeCheck's REST and WebSocket surface, per
// spec.md §6, using Echo v5 the way the teacher's pkg/api does.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/vibecheck/vibecheck/pkg/assessment"
	"github.com/vibecheck/vibecheck/pkg/config"
	"github.com/vibecheck/vibecheck/pkg/database"
	"github.com/vibecheck/vibecheck/pkg/tunnel"
)

// Server is the HTTP/WS API server.
type Server struct {
	echo        *echo.Echo
	httpServer  *http.Server
	cfg         *config.Config
	dbClient    *database.Client
	coordinator *assessment.Coordinator
	tunnel      *tunnel.Registry
}

// NewServer creates a new API server with Echo v5 and registers every
// route from spec.md §6.
func NewServer(cfg *config.Config, dbClient *database.Client, coordinator *assessment.Coordinator, reg *tunnel.Registry) *Server {
	e := echo.New()
	e.HTTPErrorHandler = customHTTPErrorHandler

	s := &Server{
		echo:        e,
		cfg:         cfg,
		dbClient:    dbClient,
		coordinator: coordinator,
		tunnel:      reg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/v1")

	v1.GET("/health", s.healthHandler)
	v1.GET("/agents", s.listAgentsHandler)
	v1.GET("/agents/:name", s.getAgentHandler)

	v1.POST("/assessments", s.createAssessmentHandler)
	v1.GET("/assessments", s.listAssessmentsHandler)
	v1.GET("/assessments/:id", s.getAssessmentHandler)
	v1.DELETE("/assessments/:id", s.deleteAssessmentHandler)
	v1.POST("/assessments/:id/rerun", s.rerunAssessmentHandler)

	v1.GET("/assessments/:id/findings", s.listFindingsHandler)
	v1.GET("/assessments/:id/findings/:fid", s.getFindingHandler)
	v1.GET("/assessments/:id/logs", s.listAgentLogsHandler)

	v1.GET("/tunnel/sessions", s.listTunnelSessionsHandler)
	v1.GET("/tunnel/sessions/:id", s.getTunnelSessionHandler)
	v1.GET("/tunnel", s.tunnelWSHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// used by tests to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health and GET /v1/health, per
// SPEC_FULL.md §9's system-warnings supplement: reports degraded state
// instead of only ever returning 200 ok.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	status := http.StatusOK
	resp := &HealthResponse{
		Status:   "healthy",
		Database: dbHealth,
		Tunnel:   TunnelHealth{ActiveSessions: s.tunnel.ActiveSessions()},
	}

	if err != nil {
		status = http.StatusServiceUnavailable
		resp.Status = "unhealthy"
		return c.JSON(status, resp)
	}

	if dbHealth.MaxOpenConns > 0 && dbHealth.InUse >= dbHealth.MaxOpenConns {
		resp.Warnings = append(resp.Warnings, "database connection pool exhausted")
	}
	if !s.cfg.HasLLM() {
		resp.Warnings = append(resp.Warnings, "no LLM API key configured: LLM contextual analysis and robust scans are unavailable")
	}
	if len(resp.Warnings) > 0 {
		resp.Status = "degraded"
	}

	return c.JSON(status, resp)
}
