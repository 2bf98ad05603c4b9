// Package chat holds the call contract shared by the LLM provider backends:
// the input and output schemas of their "create" methods and the decoding of
// validated call arguments into a provider-neutral request.
package chat

import (
	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/integration/schema"
)

// Capability tags every chat completion method.
const Capability = "llm"

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type (
	// Role identifies the author of a conversation message.
	Role string

	// Message is one conversation turn.
	Message struct {
		Role    Role
		Content string
	}

	// Request is the provider-neutral form of a chat completion call.
	Request struct {
		Model       string
		System      string
		Messages    []Message
		MaxTokens   int64
		Temperature *float64
	}

	// Reply is the provider-neutral form of a chat completion response.
	Reply struct {
		ID           string
		Model        string
		Text         string
		StopReason   string
		InputTokens  int64
		OutputTokens int64
	}
)

// InputSchema returns the argument schema of chat completion methods.
func InputSchema(name string) *schema.Schema {
	return schema.Object(
		schema.String("model", schema.Description("Provider model identifier; defaults to the backend default.")),
		schema.String("system", schema.Description("System prompt.")),
		schema.Array("messages",
			schema.Map("", schema.Fields(
				schema.String("role", schema.Required(), schema.Enum(string(RoleUser), string(RoleAssistant))),
				schema.String("content", schema.Required(), schema.MinLength(1)),
			), schema.StrictFields()),
			schema.Required(), schema.MinLength(1)),
		schema.Integer("max_tokens", schema.Minimum(1)),
		schema.Number("temperature", schema.Minimum(0), schema.Maximum(2)),
	).Named(name + ".input").Strict().MustBuild()
}

// OutputSchema returns the payload schema of chat completion methods.
func OutputSchema(name string) *schema.Schema {
	return schema.Object(
		schema.String("id"),
		schema.String("model", schema.Required()),
		schema.String("text", schema.Required()),
		schema.String("stop_reason"),
		schema.Map("usage", schema.Required(), schema.Fields(
			schema.Integer("input_tokens", schema.Required(), schema.Minimum(0)),
			schema.Integer("output_tokens", schema.Required(), schema.Minimum(0)),
		)),
	).Named(name + ".output").MustBuild()
}

// Spec returns the method spec of a chat completion method. Completions have
// no provider-side effects so they are retryable reads; they are billed per
// token.
func Spec(id method.Ident, description string) method.Spec {
	name := id.String()
	return method.Spec{
		ID:            id,
		Description:   description,
		Input:         InputSchema(name),
		Output:        OutputSchema(name),
		Capabilities:  []string{Capability, "generate"},
		Idempotency:   method.SafeRead,
		CostHint:      "billed per input and output token",
		RateLimitHint: "provider account quota",
	}
}

// ParseRequest decodes validated call arguments. defaultModel is used when
// the call names no model.
func ParseRequest(call *integration.Call, defaultModel string) (*Request, error) {
	req := &Request{
		Model:  call.StringArg("model"),
		System: call.StringArg("system"),
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if req.Model == "" {
		return nil, callerrors.Validation("model is required", []*callerrors.FieldIssue{{
			Field:      "model",
			Constraint: schema.MissingField,
			Message:    "no model given and the backend has no default model",
		}})
	}
	raw, _ := call.Args["messages"].([]any)
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, callerrors.Newf(callerrors.ValidationFailed, "messages[%d] must be an object", i)
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		req.Messages = append(req.Messages, Message{Role: Role(role), Content: content})
	}
	if len(req.Messages) == 0 {
		return nil, callerrors.New(callerrors.ValidationFailed, "at least one message is required")
	}
	if n, ok := call.IntArg("max_tokens"); ok {
		req.MaxTokens = n
	}
	if t, ok := call.FloatArg("temperature"); ok {
		req.Temperature = &t
	}
	return req, nil
}

// Data renders r as the method output payload.
func (r *Reply) Data() map[string]any {
	data := map[string]any{
		"model": r.Model,
		"text":  r.Text,
		"usage": map[string]any{
			"input_tokens":  r.InputTokens,
			"output_tokens": r.OutputTokens,
		},
	}
	if r.ID != "" {
		data["id"] = r.ID
	}
	if r.StopReason != "" {
		data["stop_reason"] = r.StopReason
	}
	return data
}

// CostUnits reports the billed token count of r.
func (r *Reply) CostUnits() float64 {
	return float64(r.InputTokens + r.OutputTokens)
}

// Response wraps r into a successful backend response.
func (r *Reply) Response(raw any) *integration.Response {
	resp := integration.Success(r.Data(), integration.Meta{
		ProviderRequestID: r.ID,
		CostUnits:         r.CostUnits(),
	})
	resp.Raw = raw
	return resp
}

