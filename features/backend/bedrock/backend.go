// Package bedrock serves chat completion calls through the AWS Bedrock
// Converse API.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/launchlab/integrations/features/backend/chat"
	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/telemetry"
)

// ConverseCreate is the method served by this backend.
const ConverseCreate method.Ident = "bedrock.converse.create.v1"

// errorCodes maps Bedrock exception names to taxonomy codes.
var errorCodes = map[string]callerrors.Code{
	"ThrottlingException":           callerrors.RateLimited,
	"TooManyRequestsException":      callerrors.RateLimited,
	"ServiceQuotaExceededException": callerrors.RateLimited,
	"AccessDeniedException":         callerrors.AuthForbidden,
	"UnrecognizedClientException":   callerrors.AuthRequired,
	"ExpiredTokenException":         callerrors.AuthRequired,
	"ResourceNotFoundException":     callerrors.NotFound,
	"ValidationException":           callerrors.ValidationFailed,
	"ModelTimeoutException":         callerrors.Timeout,
	"ModelNotReadyException":        callerrors.ProviderUnavailable,
	"ServiceUnavailableException":   callerrors.ProviderUnavailable,
	"InternalServerException":       callerrors.ProviderUnavailable,
}

type (
	// RuntimeClient mirrors the subset of the Bedrock runtime client used by
	// the backend. It is satisfied by *bedrockruntime.Client.
	RuntimeClient interface {
		Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	}

	// Options configures the backend.
	Options struct {
		// DefaultModel is the model or inference profile id used when a call
		// names no model.
		DefaultModel string
		// MaxTokens caps completions of calls without max_tokens. Zero lets
		// Bedrock apply its default.
		MaxTokens int32
		// Logger receives diagnostics. Defaults to a noop logger.
		Logger telemetry.Logger
	}

	// Backend implements integration.Backend on top of Bedrock Converse.
	Backend struct {
		runtime      RuntimeClient
		defaultModel string
		maxTokens    int32
		logger       telemetry.Logger
	}
)

// Methods returns the specs of the methods served by the backend.
func Methods() []method.Spec {
	return []method.Spec{chat.Spec(ConverseCreate, "Generate a reply with a Bedrock hosted model.")}
}

// New returns a backend sending requests through runtime.
func New(runtime RuntimeClient, opts Options) (*Backend, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Backend{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		logger:       logger,
	}, nil
}

// NewFromConfig loads the default AWS configuration chain for region and
// returns a backend using the resulting Bedrock runtime client.
func NewFromConfig(ctx context.Context, region string, opts Options) (*Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return New(bedrockruntime.NewFromConfig(cfg), opts)
}

// NewIntegration returns an integration named "bedrock" serving Methods.
func NewIntegration(b *Backend, opts ...integration.Option) (*integration.Integration, error) {
	return integration.New("bedrock", b, Methods(), opts...)
}

// Invoke implements integration.Backend.
func (b *Backend) Invoke(ctx context.Context, call *integration.Call) (*integration.Response, error) {
	if call.MethodID != ConverseCreate.String() {
		return nil, callerrors.Newf(callerrors.InternalError, "bedrock: unsupported method %s", call.MethodID)
	}
	req, err := chat.ParseRequest(call, b.defaultModel)
	if err != nil {
		return nil, err
	}
	out, err := b.runtime.Converse(ctx, b.encode(req))
	if err != nil {
		info := mapError(err)
		b.logger.Debug(ctx, "bedrock converse failed",
			"method_id", call.MethodID, "code", info.Code, "provider_code", info.ProviderCode)
		return nil, info
	}
	if out == nil {
		return nil, callerrors.New(callerrors.ProviderUnavailable, "bedrock: empty response")
	}
	reply := decode(out, req.Model)
	resp := reply.Response(out.Output)
	if id, ok := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata); ok {
		resp.Meta.ProviderRequestID = id
	}
	if out.Metrics != nil && out.Metrics.LatencyMs != nil {
		resp.Meta.LatencyMS = *out.Metrics.LatencyMs
	}
	return resp, nil
}

// Status implements integration.StatusReporter. Credentials are resolved
// lazily by the AWS SDK so their state is unknown until the first call.
func (b *Backend) Status(context.Context) integration.Status {
	return integration.Status{Available: true, Auth: integration.AuthUnknown, Detail: "credentials resolved by the AWS default chain"}
}

func (b *Backend) encode(req *chat.Request) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{ModelId: aws.String(req.Model)}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}
	for _, m := range req.Messages {
		role := brtypes.ConversationRoleUser
		if m.Role == chat.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
		})
	}
	var cfg brtypes.InferenceConfiguration
	switch {
	case req.MaxTokens > 0:
		cfg.MaxTokens = aws.Int32(int32(min(req.MaxTokens, int64(1<<31-1))))
	case b.maxTokens > 0:
		cfg.MaxTokens = aws.Int32(b.maxTokens)
	}
	if req.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*req.Temperature))
	}
	if cfg.MaxTokens != nil || cfg.Temperature != nil {
		input.InferenceConfig = &cfg
	}
	return input
}

func decode(out *bedrockruntime.ConverseOutput, modelID string) *chat.Reply {
	reply := &chat.Reply{Model: modelID, StopReason: string(out.StopReason)}
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		var text strings.Builder
		for _, block := range msg.Value.Content {
			if v, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text.WriteString(v.Value)
			}
		}
		reply.Text = text.String()
	}
	if u := out.Usage; u != nil {
		reply.InputTokens = int64(aws.ToInt32(u.InputTokens))
		reply.OutputTokens = int64(aws.ToInt32(u.OutputTokens))
	}
	return reply
}

// mapError classifies SDK errors by exception name, falling back to the HTTP
// status of the response.
func mapError(err error) *callerrors.Info {
	var (
		status int
		code   string
		msg    string
	)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
		msg = apiErr.ErrorMessage()
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}
	if c, ok := errorCodes[code]; ok {
		if msg == "" {
			msg = code
		}
		return callerrors.New(c, msg).WithProvider(code, status)
	}
	if status != 0 {
		return callerrors.FromHTTPStatus(status, code, msg)
	}
	if apiErr != nil {
		return callerrors.Newf(callerrors.InternalError, "bedrock: %s: %s", code, msg).WithProvider(code, 0)
	}
	return callerrors.Normalize(err)
}
