package cve

import "strings"

// Rule is one vulnerability entry for a package: if the installed
// version satisfies "Op Floor", the rule fires at Severity.
type Rule struct {
	Op          Operator
	Floor       string
	Severity    string // matches models.Severity, kept as string to avoid an import cycle
	ID          string
	Description string
}

// Table is a small curated package -> rules mapping. Per spec.md §1
// Non-goals, this intentionally does not attempt to reproduce a
// third-party CVE feed at scale.
var Table = map[string][]Rule{
	"lodash": {
		{Op: OpLessThan, Floor: "4.17.21", Severity: "critical", ID: "CVE-2021-23337",
			Description: "Command injection via template function in lodash before 4.17.21."},
	},
	"express": {
		{Op: OpLessThan, Floor: "4.17.3", Severity: "high", ID: "CVE-2022-24999",
			Description: "qs dependency prototype pollution affecting express before 4.17.3."},
	},
	"axios": {
		{Op: OpLessThan, Floor: "0.21.2", Severity: "high", ID: "CVE-2021-3749",
			Description: "Regular expression denial of service in axios trim function."},
	},
	"minimist": {
		{Op: OpLessThan, Floor: "1.2.6", Severity: "critical", ID: "CVE-2021-44906",
			Description: "Prototype pollution in minimist argument parsing."},
	},
	"django": {
		{Op: OpLessThan, Floor: "3.2.13", Severity: "high", ID: "CVE-2022-28346",
			Description: "SQL injection via QuerySet.annotate(), aggregate(), extra() in Django."},
	},
	"flask": {
		{Op: OpLessThan, Floor: "2.2.5", Severity: "medium", ID: "CVE-2023-30861",
			Description: "Cookie parsing allows response caching with session cookie under Flask."},
	},
	"pyyaml": {
		{Op: OpLessOrEqual, Floor: "5.3.1", Severity: "critical", ID: "CVE-2020-14343",
			Description: "Arbitrary code execution via yaml.full_load / unsafe load in PyYAML."},
	},
	"requests": {
		{Op: OpLessThan, Floor: "2.31.0", Severity: "medium", ID: "CVE-2023-32681",
			Description: "Proxy-Authorization header leak to destination server in requests."},
	},
	"log4j": {
		{Op: OpLessThan, Floor: "2.17.1", Severity: "critical", ID: "CVE-2021-44228",
			Description: "JNDI remote code execution (Log4Shell)."},
	},
	"jquery": {
		{Op: OpLessThan, Floor: "3.5.0", Severity: "medium", ID: "CVE-2020-11022",
			Description: "Cross-site scripting via untrusted HTML passed to DOM manipulation methods."},
	},
	"next": {
		{Op: OpLessThan, Floor: "13.4.20", Severity: "high", ID: "CVE-2023-46298",
			Description: "Denial of service via crafted request to the Next.js image optimizer."},
	},
}

// Lookup returns the rules for a dependency name, case-insensitively.
func Lookup(name string) ([]Rule, bool) {
	rules, ok := Table[strings.ToLower(strings.TrimSpace(name))]
	return rules, ok
}
