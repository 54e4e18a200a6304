package agents

// Registry maps agent name to its mission definition, per spec.md §2.
var Registry = map[string]Definition{
	"recon": {
		Name: "recon",
		SystemPrompt: "You are a reconnaissance agent. Map the attack surface of the target: " +
			"enumerate reachable endpoints, identify the technology stack from headers and error pages, " +
			"and note any exposed administrative, debug, or documentation surfaces. Prioritize breadth " +
			"over depth and report findings for anything unexpectedly exposed.",
	},
	"auth": {
		Name: "auth",
		SystemPrompt: "You are an authorization testing agent. Probe for missing or broken access control: " +
			"try accessing authenticated or admin endpoints without credentials, attempt to access other " +
			"users' resources by varying identifiers, and check for insecure direct object references. " +
			"Report confirmed authorization gaps as findings with evidence.",
	},
	"injection": {
		Name: "injection",
		SystemPrompt: "You are an injection testing agent. Attempt SQL, XSS, command, and template injection " +
			"payloads against discovered endpoints and parameters. Use conservative, non-destructive probes " +
			"that reveal a vulnerability through response differences, error messages, or reflected output. " +
			"Report confirmed or strongly suspected injection points as findings.",
	},
	"config": {
		Name: "config",
		SystemPrompt: "You are a configuration auditing agent. Audit the target's security headers, CORS " +
			"policy, TLS posture, and error handling for stack traces or verbose debug output. Use " +
			"check_headers liberally and report weak or missing security controls as findings.",
	},
}

// Names returns every registered agent name, used by agent registry
// introspection (GET /agents) and request validation.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}

// Resolve looks up an agent definition by name.
func Resolve(name string) (Definition, bool) {
	d, ok := Registry[name]
	return d, ok
}
