package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/vibecheck/vibecheck/pkg/models"
)

// createAssessmentHandler handles POST /v1/assessments.
func (s *Server) createAssessmentHandler(c *echo.Context) error {
	var req models.CreateAssessmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, &ErrorEnvelope{
			Error: ErrorBody{Type: "validation_error", Message: "invalid request body", Code: "VALIDATION_FAILED"},
		})
	}

	a, err := s.coordinator.Create(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, a)
}

// listAssessmentsHandler handles GET /v1/assessments.
func (s *Server) listAssessmentsHandler(c *echo.Context) error {
	f := models.AssessmentFilters{
		Mode:   models.Mode(c.QueryParam("mode")),
		Status: models.Status(c.QueryParam("status")),
		Sort:   c.QueryParam("sort"),
		Limit:  queryInt(c, "limit", 20),
		Offset: queryInt(c, "offset", 0),
	}

	items, err := s.coordinator.List(c.Request().Context(), f)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &AssessmentListResponse{Items: items, Limit: f.Limit, Offset: f.Offset})
}

// getAssessmentHandler handles GET /v1/assessments/{id}.
func (s *Server) getAssessmentHandler(c *echo.Context) error {
	a, err := s.coordinator.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// deleteAssessmentHandler handles DELETE /v1/assessments/{id}.
func (s *Server) deleteAssessmentHandler(c *echo.Context) error {
	if err := s.coordinator.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// rerunAssessmentHandler handles POST /v1/assessments/{id}/rerun.
func (s *Server) rerunAssessmentHandler(c *echo.Context) error {
	var overrides models.RerunOverrides
	if err := c.Bind(&overrides); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, &ErrorEnvelope{
			Error: ErrorBody{Type: "validation_error", Message: "invalid request body", Code: "VALIDATION_FAILED"},
		})
	}

	a, err := s.coordinator.Rerun(c.Request().Context(), c.Param("id"), overrides)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, a)
}

func queryInt(c *echo.Context, key string, fallback int) int {
	v := c.QueryParam(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
