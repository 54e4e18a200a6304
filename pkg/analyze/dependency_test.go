package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependency_VulnerableVersionBelowFloor(t *testing.T) {
	findings := Dependency(map[string]string{"lodash": "4.17.15"})
	require.Len(t, findings, 1)
	assert.Equal(t, "vulnerable_dependency", findings[0].Category)
	assert.Contains(t, findings[0].Title, "lodash")
	assert.Equal(t, "CVE-2021-23337", findings[0].Evidence["cve_id"])
}

func TestDependency_PatchedVersionIsClean(t *testing.T) {
	findings := Dependency(map[string]string{"lodash": "4.17.21"})
	assert.Empty(t, findings)
}

func TestDependency_UnknownPackageIsSkipped(t *testing.T) {
	findings := Dependency(map[string]string{"my-internal-lib": "1.0.0"})
	assert.Empty(t, findings)
}

func TestDependency_UnpinnedEmitsInfoFinding(t *testing.T) {
	findings := Dependency(map[string]string{"express": "*"})
	require.Len(t, findings, 1)
	assert.Equal(t, "unpinned_dependency", findings[0].Category)
}

func TestDependency_MultipleRulesEachEmit(t *testing.T) {
	// pyyaml has a single rule at <=5.3; below-floor version should still
	// only emit once per satisfied rule.
	findings := Dependency(map[string]string{"pyyaml": "5.2.0"})
	require.Len(t, findings, 1)
	assert.Equal(t, "CVE-2020-14343", findings[0].Evidence["cve_id"])
}
