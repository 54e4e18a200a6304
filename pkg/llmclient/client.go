// Package llmclient wraps the Gemini function-calling API behind a
// small, deterministic protocol: (conversation, tools, temperature) ->
// ({text?, calls}), per the design note in SPEC_FULL.md §9. This is the
// only place google.golang.org/genai is imported; both the LLM
// contextual analyzer and the robust agent loop depend on this
// interface, not on the vendor SDK directly, so both can be tested
// against a stub implementation.
package llmclient

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Role is a conversation turn's speaker.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Call is one function call the model asked the caller to execute.
type Call struct {
	Name string
	Args map[string]any
}

// ToolResult is one function's result, fed back as a single user turn
// containing all of the step's tool responses (spec.md §4.7 step 3).
type ToolResult struct {
	Name   string
	Result map[string]any
}

// Turn is one entry in the running conversation. Exactly one of Text,
// Calls, or Results is populated.
type Turn struct {
	Role    Role
	Text    string
	Calls   []Call
	Results []ToolResult
}

// ToolDeclaration is a function the model may call.
type ToolDeclaration struct {
	Name        string
	Description string
	// Parameters is a JSON-Schema-shaped map: {"type":"object","properties":{...},"required":[...]}.
	Parameters map[string]any
}

// Response is what the model returned for one turn of the loop.
type Response struct {
	Text  string
	Calls []Call
}

// Client is the deterministic function-calling protocol the agent loop
// and the contextual analyzer both consume.
type Client interface {
	// Generate sends the running conversation plus tool declarations and
	// returns the model's next turn.
	Generate(ctx context.Context, system string, conversation []Turn, tools []ToolDeclaration, temperature float64) (*Response, error)
	// Complete runs a single-shot, tool-free prompt and returns raw text,
	// used by the LLM contextual analyzer (spec.md §4.4).
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiClient implements Client over google.golang.org/genai.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient constructs a client bound to apiKey/model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llmclient: API key is required")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llmclient: create genai client: %w", err)
	}
	return &GeminiClient{client: c, model: model}, nil
}

// Generate implements Client.
func (g *GeminiClient) Generate(ctx context.Context, system string, conversation []Turn, tools []ToolDeclaration, temperature float64) (*Response, error) {
	contents := make([]*genai.Content, 0, len(conversation))
	for _, t := range conversation {
		contents = append(contents, turnToContent(t))
	}

	temp := float32(temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(tools)}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("llmclient: generate content: %w", err)
	}
	return responseFrom(resp), nil
}

// Complete implements Client.
func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		return "", fmt.Errorf("llmclient: generate content: %w", err)
	}
	return responseFrom(resp).Text, nil
}

func turnToContent(t Turn) *genai.Content {
	role := string(t.Role)
	var parts []*genai.Part
	switch {
	case len(t.Calls) > 0:
		for _, c := range t.Calls {
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: c.Name, Args: c.Args}})
		}
	case len(t.Results) > 0:
		for _, r := range t.Results {
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{Name: r.Name, Response: r.Result}})
		}
	default:
		parts = append(parts, &genai.Part{Text: t.Text})
	}
	return &genai.Content{Role: role, Parts: parts}
}

func responseFrom(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			out.Text += p.Text
		}
		if p.FunctionCall != nil {
			out.Calls = append(out.Calls, Call{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args})
		}
	}
	return out
}

func toFunctionDeclarations(tools []ToolDeclaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		out = append(out, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toSchema(t.Parameters),
		})
	}
	return out
}

// toSchema converts a JSON-Schema-shaped map into a *genai.Schema. Only
// the subset the four agent tools actually use (object/string/array with
// enum/required) is handled; this is not a general JSON Schema
// converter.
func toSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = jsonTypeToGenai(t)
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	if req, ok := m["required"].([]string); ok {
		s.Required = req
	} else if reqAny, ok := m["required"].([]any); ok {
		for _, r := range reqAny {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if enumAny, ok := m["enum"].([]string); ok {
		s.Enum = enumAny
	} else if enumRaw, ok := m["enum"].([]any); ok {
		for _, e := range enumRaw {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	return s
}

func jsonTypeToGenai(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
