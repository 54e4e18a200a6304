package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/vibecheck/vibecheck/pkg/agents"
	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

var allDepths = []models.Depth{models.DepthQuick, models.DepthStandard, models.DepthDeep}

// listAgentsHandler handles GET /v1/agents: agent registry introspection,
// per SPEC_FULL.md §9.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	names := agents.Names()
	out := make([]AgentSummary, 0, len(names))
	for _, name := range names {
		def, _ := agents.Resolve(name)
		out = append(out, AgentSummary{Name: def.Name, SystemPrompt: def.SystemPrompt})
	}
	return c.JSON(http.StatusOK, out)
}

// getAgentHandler handles GET /v1/agents/{name}: one agent's mission and
// the depth budget table from spec.md §4.7.
func (s *Server) getAgentHandler(c *echo.Context) error {
	name := c.Param("name")
	def, ok := agents.Resolve(name)
	if !ok {
		return mapError(vcerrors.UnknownAgent(name))
	}

	budgets := make(map[string]BudgetView, len(allDepths))
	for _, depth := range allDepths {
		b := agents.BudgetFor(depth)
		budgets[string(depth)] = BudgetView{
			MaxSteps:          b.MaxSteps,
			MaxHTTPRequests:   b.MaxHTTPRequests,
			PerPathAttemptCap: b.PerPathAttemptCap,
		}
	}

	return c.JSON(http.StatusOK, &AgentDetail{
		AgentSummary: AgentSummary{Name: def.Name, SystemPrompt: def.SystemPrompt},
		Budgets:      budgets,
	})
}
