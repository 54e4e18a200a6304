package analyze

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecheck/vibecheck/pkg/llmclient"
	"github.com/vibecheck/vibecheck/pkg/models"
)

func TestParseLLMFindings_DropsInvalidElements(t *testing.T) {
	raw := "```json\n" + `[
		{"severity":"critical","category":"authz","title":"Missing check","description":"d","remediation":"r"},
		{"severity":"bogus","category":"x","title":"y","description":"d","remediation":"r"},
		{"severity":"high","category":"","title":"y","description":"d","remediation":"r"}
	]` + "\n```"

	findings, err := parseLLMFindings(raw)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
}

func TestLLMContextual_NoAPIFailureNeverPanics(t *testing.T) {
	stub := &llmclient.Stub{Completes: []string{"not json"}}
	findings := LLMContextual(context.Background(), stub, []File{{Path: "app/auth.go", Content: "package auth"}}, models.ProjectInfo{})
	assert.Nil(t, findings)
}

func TestConcatenateWithinBudget_NeverSplitsAFile(t *testing.T) {
	big := make([]byte, llmByteBudget)
	for i := range big {
		big[i] = 'x'
	}
	files := []File{{Path: "a.go", Content: string(big)}, {Path: "b.go", Content: "short"}}
	out := concatenateWithinBudget(files)
	assert.Contains(t, out, "a.go")
	assert.NotContains(t, out, "b.go")
}

func TestPrioritizeFiles_RanksAuthFilesFirst(t *testing.T) {
	files := []File{{Path: "README.md"}, {Path: "src/auth/login.go"}}
	out := prioritizeFiles(files)
	assert.Equal(t, "src/auth/login.go", out[0].Path)
}
