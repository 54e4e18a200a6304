package api

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// listTunnelSessionsHandler handles GET /v1/tunnel/sessions.
func (s *Server) listTunnelSessionsHandler(c *echo.Context) error {
	items, err := s.dbClient.ListTunnelSessions(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &TunnelSessionListResponse{Items: items})
}

// getTunnelSessionHandler handles GET /v1/tunnel/sessions/{id}.
func (s *Server) getTunnelSessionHandler(c *echo.Context) error {
	sess, err := s.dbClient.GetTunnelSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// tunnelWSHandler handles WS /v1/tunnel: upgrades the connection and
// delegates to the tunnel Registry, per spec.md §4.8.
func (s *Server) tunnelWSHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// The connection is already hijacked once Accept succeeds, so any
	// failure here is logged rather than surfaced as an HTTP response.
	if err := s.tunnel.HandleConnection(c.Request().Context(), conn); err != nil {
		slog.Warn("tunnel connection ended with error", "error", err)
	}
	return nil
}
