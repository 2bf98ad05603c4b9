package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	calls      int
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.calls++
	s.lastParams = body
	return s.resp, s.err
}

func newTestIntegration(t *testing.T, stub *stubMessagesClient) *integration.Integration {
	t.Helper()
	b, err := New(stub, Options{DefaultModel: "claude-test", MaxTokens: 256})
	require.NoError(t, err)
	in, err := NewIntegration(b)
	require.NoError(t, err)
	return in
}

func conversation() map[string]any {
	return map[string]any{
		"system": "Be brief.",
		"messages": []any{
			map[string]any{"role": "user", "content": "hello"},
			map[string]any{"role": "assistant", "content": "hi"},
			map[string]any{"role": "user", "content": "how are you?"},
		},
		"temperature": 0.2,
	}
}

func TestInvokeTranslatesConversation(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		ID:    "msg_01",
		Model: "claude-test",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "fine, "},
			{Type: "tool_use", Name: "ignored"},
			{Type: "text", Text: "thanks"},
		},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 12, OutputTokens: 3},
	}}
	in := newTestIntegration(t, stub)

	res := in.Dispatch(context.Background(), integration.Call{MethodID: MessagesCreate.String(), Args: conversation()})
	require.True(t, res.OK, "error: %v", res.Error)
	require.Equal(t, "fine, thanks", res.Data["text"])
	require.Equal(t, "msg_01", res.Data["id"])
	require.Equal(t, "end_turn", res.Data["stop_reason"])
	require.Equal(t, "msg_01", res.Meta.ProviderRequestID)
	require.InDelta(t, 15.0, res.Meta.CostUnits, 0.0001)

	p := stub.lastParams
	require.Equal(t, sdk.Model("claude-test"), p.Model)
	require.Equal(t, int64(256), p.MaxTokens)
	require.Len(t, p.System, 1)
	require.Equal(t, "Be brief.", p.System[0].Text)
	require.Len(t, p.Messages, 3)
	require.Equal(t, sdk.MessageParamRoleAssistant, p.Messages[1].Role)
	require.InDelta(t, 0.2, p.Temperature.Value, 0.0001)
}

func TestInvokeHonorsModelAndMaxTokens(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{Model: "claude-other", Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}}}}
	in := newTestIntegration(t, stub)
	args := conversation()
	args["model"] = "claude-other"
	args["max_tokens"] = 64

	res := in.Dispatch(context.Background(), integration.Call{MethodID: MessagesCreate.String(), Args: args})
	require.True(t, res.OK, "error: %v", res.Error)
	require.Equal(t, sdk.Model("claude-other"), stub.lastParams.Model)
	require.Equal(t, int64(64), stub.lastParams.MaxTokens)
}

func TestInvalidArgumentsNeverReachClient(t *testing.T) {
	stub := &stubMessagesClient{}
	in := newTestIntegration(t, stub)

	res := in.Dispatch(context.Background(), integration.Call{
		MethodID: MessagesCreate.String(),
		Args:     map[string]any{"messages": []any{map[string]any{"role": "system", "content": "x"}}},
	})
	require.True(t, res.Failed(callerrors.ValidationFailed))
	require.Zero(t, stub.calls)
}

func TestAPIErrorsAreMappedByStatus(t *testing.T) {
	cases := []struct {
		status int
		code   callerrors.Code
	}{
		{http.StatusUnauthorized, callerrors.AuthRequired},
		{http.StatusForbidden, callerrors.AuthForbidden},
		{http.StatusNotFound, callerrors.NotFound},
		{http.StatusTooManyRequests, callerrors.RateLimited},
		{http.StatusBadRequest, callerrors.ValidationFailed},
		{529, callerrors.ProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			stub := &stubMessagesClient{err: &sdk.Error{StatusCode: tc.status}}
			in := newTestIntegration(t, stub)

			res := in.Dispatch(context.Background(), integration.Call{MethodID: MessagesCreate.String(), Args: conversation()})
			require.True(t, res.Failed(tc.code), "got %+v", res.Error)
			require.Equal(t, tc.status, res.Error.HTTPStatus)
		})
	}
}

func TestTransportErrorsAreNormalized(t *testing.T) {
	stub := &stubMessagesClient{err: context.DeadlineExceeded}
	in := newTestIntegration(t, stub)

	res := in.Dispatch(context.Background(), integration.Call{MethodID: MessagesCreate.String(), Args: conversation()})
	require.True(t, res.Failed(callerrors.Timeout))
	require.True(t, res.Retriable())
}

func TestMissingAPIKey(t *testing.T) {
	b, err := NewFromAPIKey("  ", Options{DefaultModel: "claude-test"})
	require.NoError(t, err)
	in, err := NewIntegration(b)
	require.NoError(t, err)

	st := in.Status(context.Background())
	require.False(t, st.Available)
	require.Equal(t, integration.AuthMissing, st.Auth)

	res := in.Dispatch(context.Background(), integration.Call{MethodID: MessagesCreate.String(), Args: conversation()})
	require.True(t, res.Failed(callerrors.AuthRequired))
}

func TestNoModelConfigured(t *testing.T) {
	stub := &stubMessagesClient{}
	b, err := New(stub, Options{})
	require.NoError(t, err)
	in, err := NewIntegration(b)
	require.NoError(t, err)

	res := in.Dispatch(context.Background(), integration.Call{MethodID: MessagesCreate.String(), Args: conversation()})
	require.True(t, res.Failed(callerrors.ValidationFailed))
	require.Len(t, res.Error.Issues, 1)
	require.Equal(t, "model", res.Error.Issues[0].Field)
	require.Zero(t, stub.calls)
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}
