package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

// listFindingsHandler handles GET /v1/assessments/{id}/findings.
func (s *Server) listFindingsHandler(c *echo.Context) error {
	id := c.Param("id")
	if _, err := s.coordinator.Get(c.Request().Context(), id); err != nil {
		return mapError(err)
	}

	f := models.FindingFilters{
		Severity: models.Severity(c.QueryParam("severity")),
		Category: c.QueryParam("category"),
		Agent:    c.QueryParam("agent"),
		Sort:     c.QueryParam("sort"),
	}

	items, err := s.dbClient.ListFindings(c.Request().Context(), id, f)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &FindingListResponse{Items: items})
}

// getFindingHandler handles GET /v1/assessments/{id}/findings/{fid}.
func (s *Server) getFindingHandler(c *echo.Context) error {
	id, fid := c.Param("id"), c.Param("fid")
	f, err := s.dbClient.GetFinding(c.Request().Context(), id, fid)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, f)
}

// listAgentLogsHandler handles GET /v1/assessments/{id}/logs. Only
// available for robust assessments, per spec.md §6.
func (s *Server) listAgentLogsHandler(c *echo.Context) error {
	id := c.Param("id")
	a, err := s.coordinator.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if a.Mode != models.ModeRobust {
		return mapError(vcerrors.LogsNotAvailable(id))
	}

	items, err := s.dbClient.ListAgentLogs(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &AgentLogListResponse{Items: items})
}
