package analyze

import (
	"fmt"

	"github.com/vibecheck/vibecheck/pkg/cve"
	"github.com/vibecheck/vibecheck/pkg/models"
)

// Dependency runs the dependency CVE analyzer over a project's declared
// dependencies, per spec.md §4.3.
func Dependency(deps map[string]string) []Finding {
	var findings []Finding
	for name, version := range deps {
		rules, ok := cve.Lookup(name)
		if !ok {
			continue
		}

		if cve.Unpinned(version) {
			floor := rules[0].Floor
			findings = append(findings, Finding{
				Severity:    models.SeverityInfo,
				Category:    "unpinned_dependency",
				Title:       fmt.Sprintf("Unpinned dependency: %s", name),
				Description: fmt.Sprintf("%s has no pinned version; known-vulnerable versions exist below %s.", name, floor),
				Location:    &models.Location{Package: name, Version: version},
				Remediation: fmt.Sprintf("Pin %s to a patched version (>= %s) in your manifest.", name, floor),
			})
			continue
		}

		for _, rule := range rules {
			if !cve.Satisfies(version, rule.Floor, rule.Op) {
				continue
			}
			findings = append(findings, Finding{
				Severity:    models.Severity(rule.Severity),
				Category:    "vulnerable_dependency",
				Title:       fmt.Sprintf("Vulnerable dependency: %s@%s (%s)", name, version, rule.ID),
				Description: rule.Description,
				Location:    &models.Location{Package: name, Version: version},
				Evidence:    map[string]any{"cve_id": rule.ID},
				Remediation: fmt.Sprintf("Upgrade %s to a version that is not %s %s.", name, rule.Op, rule.Floor),
			})
		}
	}
	return findings
}
