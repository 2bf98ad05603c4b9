// Package anthropic serves chat completion calls through the Anthropic Claude
// Messages API using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/launchlab/integrations/features/backend/chat"
	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/telemetry"
)

// MessagesCreate is the method served by this backend.
const MessagesCreate method.Ident = "anthropic.messages.create.v1"

const defaultMaxTokens = 1024

type (
	// MessagesClient captures the subset of the Anthropic SDK client used by
	// the backend. It is satisfied by *sdk.MessageService.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures the backend.
	Options struct {
		// DefaultModel is used when a call names no model, for example
		// string(sdk.ModelClaudeSonnet4_5_20250929).
		DefaultModel string
		// MaxTokens caps completions of calls without max_tokens. Defaults
		// to 1024.
		MaxTokens int64
		// Logger receives diagnostics. Defaults to a noop logger.
		Logger telemetry.Logger
	}

	// Backend implements integration.Backend on top of Anthropic Messages.
	Backend struct {
		msg          MessagesClient
		defaultModel string
		maxTokens    int64
		logger       telemetry.Logger
	}

	apiErrorBody struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
)

// Methods returns the specs of the methods served by the backend.
func Methods() []method.Spec {
	return []method.Spec{chat.Spec(MessagesCreate, "Generate a Claude reply to a conversation.")}
}

// New returns a backend sending requests through msg.
func New(msg MessagesClient, opts Options) (*Backend, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	b := &Backend{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		logger:       opts.Logger,
	}
	if b.maxTokens <= 0 {
		b.maxTokens = defaultMaxTokens
	}
	if b.logger == nil {
		b.logger = telemetry.NewNoopLogger()
	}
	return b, nil
}

// NewFromAPIKey returns a backend using the default Anthropic HTTP client.
// An empty apiKey yields a backend that reports missing credentials and fails
// every call with AUTH_REQUIRED.
func NewFromAPIKey(apiKey string, opts Options) (*Backend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return New(missingKey{}, opts)
	}
	c := sdk.NewClient(option.WithAPIKey(strings.TrimSpace(apiKey)))
	return New(&c.Messages, opts)
}

// NewIntegration returns an integration named "anthropic" serving Methods.
func NewIntegration(b *Backend, opts ...integration.Option) (*integration.Integration, error) {
	return integration.New("anthropic", b, Methods(), opts...)
}

// Invoke implements integration.Backend.
func (b *Backend) Invoke(ctx context.Context, call *integration.Call) (*integration.Response, error) {
	if call.MethodID != MessagesCreate.String() {
		return nil, callerrors.Newf(callerrors.InternalError, "anthropic: unsupported method %s", call.MethodID)
	}
	req, err := chat.ParseRequest(call, b.defaultModel)
	if err != nil {
		return nil, err
	}
	params := b.encode(req)
	msg, err := b.msg.New(ctx, params)
	if err != nil {
		info := mapError(err)
		b.logger.Debug(ctx, "anthropic messages.new failed",
			"method_id", call.MethodID, "code", info.Code, "status", info.HTTPStatus)
		return nil, info
	}
	if msg == nil {
		return nil, callerrors.New(callerrors.ProviderUnavailable, "anthropic: empty response")
	}
	return decode(msg).Response(msg), nil
}

// Status implements integration.StatusReporter.
func (b *Backend) Status(context.Context) integration.Status {
	if _, ok := b.msg.(missingKey); ok {
		return integration.Status{Available: false, Auth: integration.AuthMissing, Detail: "ANTHROPIC_API_KEY is not set"}
	}
	return integration.Status{Available: true, Auth: integration.AuthConfigured}
}

func (b *Backend) encode(req *chat.Request) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: b.maxTokens,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	for _, m := range req.Messages {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == chat.RoleAssistant {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(block))
			continue
		}
		params.Messages = append(params.Messages, sdk.NewUserMessage(block))
	}
	return params
}

func decode(msg *sdk.Message) *chat.Reply {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &chat.Reply{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Text:         text.String(),
		StopReason:   string(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
}

// mapError classifies SDK errors. API errors carry the HTTP status and a JSON
// body of the form {"error":{"type":...,"message":...}}.
func mapError(err error) *callerrors.Info {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return callerrors.Normalize(err)
	}
	var body apiErrorBody
	_ = json.Unmarshal([]byte(apiErr.RawJSON()), &body)
	msg := body.Error.Message
	if msg == "" {
		msg = "anthropic api error"
	}
	return callerrors.FromHTTPStatus(apiErr.StatusCode, body.Error.Type, msg)
}

// missingKey stands in for the SDK client when no API key is configured.
type missingKey struct{}

func (missingKey) New(context.Context, sdk.MessageNewParams, ...option.RequestOption) (*sdk.Message, error) {
	return nil, callerrors.New(callerrors.AuthRequired, "anthropic: no API key configured")
}
