package llmclient

import "context"

// Stub is a scripted Client used by agent-loop and contextual-analyzer
// tests, per the design note in SPEC_FULL.md §9 ("lets the tool
// dispatcher be reused across agents" / tested with a stub model).
type Stub struct {
	Responses []Response // consumed in order by Generate
	Completes []string   // consumed in order by Complete
	calls     int
	completes int
}

// Generate returns the next scripted response, or an empty response once
// exhausted (simulating "no function calls" loop termination).
func (s *Stub) Generate(_ context.Context, _ string, _ []Turn, _ []ToolDeclaration, _ float64) (*Response, error) {
	if s.calls >= len(s.Responses) {
		return &Response{}, nil
	}
	r := s.Responses[s.calls]
	s.calls++
	return &r, nil
}

// Complete returns the next scripted completion.
func (s *Stub) Complete(_ context.Context, _ string) (string, error) {
	if s.completes >= len(s.Completes) {
		return "", nil
	}
	r := s.Completes[s.completes]
	s.completes++
	return r, nil
}
