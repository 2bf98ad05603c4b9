// Package openai serves chat completion calls through the OpenAI Chat
// Completions API or any compatible endpoint such as OpenRouter.
package openai

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/launchlab/integrations/features/backend/chat"
	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/telemetry"
)

// ChatCompletionsCreate is the method served by this backend.
const ChatCompletionsCreate method.Ident = "openai.chat_completions.create.v1"

type (
	// CompletionsClient captures the subset of the OpenAI SDK used by the
	// backend. It is satisfied by *sdk.ChatCompletionService.
	CompletionsClient interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Config describes how to reach an OpenAI compatible endpoint.
	Config struct {
		APIKey string
		// BaseURL overrides the API endpoint, for example
		// https://openrouter.ai/api/v1.
		BaseURL string
		// Headers are sent with every request. OpenRouter uses HTTP-Referer
		// and X-Title to attribute traffic.
		Headers map[string]string
	}

	// Options configures the backend.
	Options struct {
		// DefaultModel is used when a call names no model.
		DefaultModel string
		// MaxTokens caps completions of calls without max_tokens. Zero lets
		// the provider apply its default.
		MaxTokens int64
		// Logger receives diagnostics. Defaults to a noop logger.
		Logger telemetry.Logger
	}

	// Backend implements integration.Backend on top of Chat Completions.
	Backend struct {
		completions  CompletionsClient
		defaultModel string
		maxTokens    int64
		logger       telemetry.Logger
	}
)

// Methods returns the specs of the methods served by the backend.
func Methods() []method.Spec {
	return []method.Spec{chat.Spec(ChatCompletionsCreate, "Generate a chat completion with an OpenAI compatible model.")}
}

// New returns a backend sending requests through completions.
func New(completions CompletionsClient, opts Options) (*Backend, error) {
	if completions == nil {
		return nil, errors.New("openai: completions client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Backend{
		completions:  completions,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		logger:       logger,
	}, nil
}

// NewFromConfig builds the SDK client described by cfg. An empty API key
// yields a backend that reports missing credentials and fails every call with
// AUTH_REQUIRED.
func NewFromConfig(cfg Config, opts Options) (*Backend, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return New(missingKey{}, opts)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(key)}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	for k, v := range cfg.Headers {
		if v != "" {
			reqOpts = append(reqOpts, option.WithHeader(k, v))
		}
	}
	client := sdk.NewClient(reqOpts...)
	return New(&client.Chat.Completions, opts)
}

// NewIntegration returns an integration named "openai" serving Methods.
func NewIntegration(b *Backend, opts ...integration.Option) (*integration.Integration, error) {
	return integration.New("openai", b, Methods(), opts...)
}

// Invoke implements integration.Backend.
func (b *Backend) Invoke(ctx context.Context, call *integration.Call) (*integration.Response, error) {
	if call.MethodID != ChatCompletionsCreate.String() {
		return nil, callerrors.Newf(callerrors.InternalError, "openai: unsupported method %s", call.MethodID)
	}
	req, err := chat.ParseRequest(call, b.defaultModel)
	if err != nil {
		return nil, err
	}
	out, err := b.completions.New(ctx, b.encode(req))
	if err != nil {
		info := mapError(err)
		b.logger.Debug(ctx, "openai chat.completions.new failed",
			"method_id", call.MethodID, "code", info.Code, "status", info.HTTPStatus)
		return nil, info
	}
	if out == nil || len(out.Choices) == 0 {
		return nil, callerrors.New(callerrors.ProviderUnavailable, "openai: response has no choices")
	}
	choice := out.Choices[0]
	reply := &chat.Reply{
		ID:           out.ID,
		Model:        out.Model,
		Text:         choice.Message.Content,
		StopReason:   choice.FinishReason,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}
	if reply.Model == "" {
		reply.Model = req.Model
	}
	if choice.Message.Refusal != "" && reply.Text == "" {
		reply.Text = choice.Message.Refusal
	}
	return reply.Response(out), nil
}

// Status implements integration.StatusReporter.
func (b *Backend) Status(context.Context) integration.Status {
	if _, ok := b.completions.(missingKey); ok {
		return integration.Status{Available: false, Auth: integration.AuthMissing, Detail: "API key is not set"}
	}
	return integration.Status{Available: true, Auth: integration.AuthConfigured}
}

func (b *Backend) encode(req *chat.Request) sdk.ChatCompletionNewParams {
	params := sdk.ChatCompletionNewParams{Model: req.Model}
	if req.System != "" {
		params.Messages = append(params.Messages, sdk.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		if m.Role == chat.RoleAssistant {
			params.Messages = append(params.Messages, sdk.AssistantMessage(m.Content))
			continue
		}
		params.Messages = append(params.Messages, sdk.UserMessage(m.Content))
	}
	switch {
	case req.MaxTokens > 0:
		params.MaxCompletionTokens = sdk.Int(req.MaxTokens)
	case b.maxTokens > 0:
		params.MaxCompletionTokens = sdk.Int(b.maxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	return params
}

// mapError classifies SDK errors. The SDK error is inspected through its
// fields only: formatting it requires the originating request.
func mapError(err error) *callerrors.Info {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return callerrors.Normalize(err)
	}
	code := apiErr.Code
	if code == "" {
		code = apiErr.Type
	}
	info := callerrors.FromHTTPStatus(apiErr.StatusCode, code, apiErr.Message)
	if apiErr.StatusCode == 429 && apiErr.Code == "insufficient_quota" {
		// Exhausted quota does not recover by waiting.
		info.Retriable = false
	}
	return info
}

// missingKey stands in for the SDK client when no API key is configured.
type missingKey struct{}

func (missingKey) New(context.Context, sdk.ChatCompletionNewParams, ...option.RequestOption) (*sdk.ChatCompletion, error) {
	return nil, callerrors.New(callerrors.AuthRequired, "openai: no API key configured")
}
