package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/integration/stub"
)

func TestNewFailsFast(t *testing.T) {
	_, err := integration.New("widgets", stub.New(), nil)
	require.ErrorIs(t, err, method.ErrEmptyRegistry)

	bad := widgetSpecs()
	bad[0].Idempotency = "sometimes"
	_, err = integration.New("widgets", stub.New(), bad)
	require.ErrorContains(t, err, "unknown idempotency class")

	_, err = integration.New("", stub.New(), widgetSpecs())
	require.Error(t, err)
	_, err = integration.New("widgets", nil, widgetSpecs())
	require.ErrorIs(t, err, integration.ErrNilBackend)
}

func TestIntegrationDispatchAndStatus(t *testing.T) {
	backend := stub.New().Returns(widgetGet, map[string]any{"id": "w1", "name": "Widget"})
	in, err := integration.New("widgets", backend, widgetSpecs())
	require.NoError(t, err)

	require.Equal(t, "widgets", in.Name())
	require.Equal(t, 3, in.Registry().Len())
	require.Same(t, in.Registry(), in.Dispatcher().Registry())

	res := in.Dispatch(context.Background(), integration.Call{MethodID: widgetGet, Args: map[string]any{"id": "w1"}})
	require.True(t, res.OK)

	backend.SetStatus(integration.Status{Available: false, Auth: integration.AuthMissing, Detail: "no token"})
	require.Equal(t, integration.AuthMissing, in.Status(context.Background()).Auth)

	plain := integration.BackendFunc(func(context.Context, *integration.Call) (*integration.Response, error) {
		return nil, callerrors.New(callerrors.NotFound, "")
	})
	in2, err := integration.New("plain", plain, widgetSpecs())
	require.NoError(t, err)
	st := in2.Status(context.Background())
	require.True(t, st.Available)
	require.Equal(t, integration.AuthUnknown, st.Auth)
}

func TestCallArgumentAccessors(t *testing.T) {
	c := integration.Call{Args: map[string]any{
		"name":  "w",
		"limit": 10.0,
		"big":   "42",
		"flag":  true,
		"ratio": 0.25,
	}}
	require.Equal(t, "w", c.StringArg("name"))
	require.Equal(t, "", c.StringArg("missing"))
	n, ok := c.IntArg("limit")
	require.True(t, ok)
	require.Equal(t, int64(10), n)
	n, ok = c.IntArg("big")
	require.True(t, ok)
	require.Equal(t, int64(42), n)
	_, ok = c.IntArg("ratio")
	require.False(t, ok)
	f, ok := c.FloatArg("ratio")
	require.True(t, ok)
	require.Equal(t, 0.25, f)
	b, ok := c.BoolArg("flag")
	require.True(t, ok)
	require.True(t, b)
}
