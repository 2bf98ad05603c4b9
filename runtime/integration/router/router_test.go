package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/integration/retry"
	"github.com/launchlab/integrations/runtime/integration/schema"
	"github.com/launchlab/integrations/runtime/integration/stub"
)

const (
	listCampaigns = "meta_ads.campaigns.list.v1"
	listContacts  = "hubspot.contacts.list.v1"
	listContactsV = "hubspot.contacts.list.v2"
)

func spec(id string, caps ...string) method.Spec {
	return method.Spec{
		ID:           method.Ident(id),
		Description:  "list " + id,
		Input:        schema.Object(schema.Integer("limit")).MustBuild(),
		Output:       schema.Object(schema.Array("items", schema.Map(""), schema.Required())).MustBuild(),
		Capabilities: caps,
		Idempotency:  method.SafeRead,
	}
}

type fixture struct {
	ads, crm *stub.Backend
	router   *Router
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		ads: stub.New().Returns(listCampaigns, map[string]any{"items": []any{map[string]any{"id": "c1"}}}),
		crm: stub.New().Returns(listContactsV, map[string]any{"items": []any{}}),
	}
	ads, err := integration.New("ads", f.ads, []method.Spec{spec(listCampaigns, "ads", "read")})
	require.NoError(t, err)
	deprecated := spec(listContacts, "crm", "read")
	deprecated.Deprecated = true
	deprecated.ReplacementID = listContactsV
	crm, err := integration.New("crm", f.crm, []method.Spec{deprecated, spec(listContactsV, "crm", "read")})
	require.NoError(t, err)

	f.router, err = New("growth_data", "Query growth data sources.", []*integration.Integration{ads, crm}, []Operation{
		{Name: "campaigns", Summary: "List ad campaigns.", Methods: []method.Ident{listCampaigns}},
		{Name: "overview", Summary: "Campaigns and contacts.", Methods: []method.Ident{listCampaigns, listContactsV}},
		{
			Name:    "contacts",
			Summary: "List CRM contacts.",
			Usage:   "Pass limit to bound the page size.",
			Methods: []method.Ident{listContactsV},
			Plan: func(req Request) ([]integration.Call, error) {
				if _, ok := req.Args["segment"]; ok {
					return nil, errors.New("segment filtering is not supported")
				}
				return []integration.Call{{MethodID: listContactsV, Args: map[string]any{"limit": 25}}}, nil
			},
		},
	}, opts...)
	require.NoError(t, err)
	return f
}

func TestMissingOpBehavesLikeHelp(t *testing.T) {
	f := newFixture(t)
	omitted := f.router.Handle(context.Background(), Request{})
	help := f.router.Handle(context.Background(), Request{Op: "help"})

	require.Equal(t, help, omitted)
	require.True(t, omitted.OK)
	require.Equal(t, OpHelp, omitted.Op)
	require.Contains(t, omitted.Text, "campaigns")
	require.Equal(t, 0, f.ads.Total()+f.crm.Total())
}

func TestUnknownOpFailsWithHint(t *testing.T) {
	f := newFixture(t)
	res := f.router.Handle(context.Background(), Request{Op: "delete_everything"})

	require.False(t, res.OK)
	require.Equal(t, callerrors.ValidationFailed, res.Error.Code)
	require.Contains(t, res.Error.Hint, "help, status")
	require.Contains(t, res.Error.Hint, "campaigns")
}

func TestCatalogOpsRequireOption(t *testing.T) {
	f := newFixture(t)
	res := f.router.Handle(context.Background(), Request{Op: OpListMethods})
	require.Equal(t, callerrors.ValidationFailed, res.Error.Code)

	f = newFixture(t, WithCatalog())
	res = f.router.Handle(context.Background(), Request{Op: OpListProviders})
	require.True(t, res.OK)
	providers := res.Data["providers"].([]map[string]any)
	require.Len(t, providers, 2)
	require.Equal(t, "hubspot", providers[0]["provider"])
	require.Equal(t, "meta_ads", providers[1]["provider"])

	res = f.router.Handle(context.Background(), Request{Op: OpListMethods, Args: map[string]any{"provider": "hubspot"}})
	require.True(t, res.OK)
	methods := res.Data["methods"].([]map[string]any)
	require.Len(t, methods, 2)
	require.Equal(t, true, methods[0]["deprecated"])
	require.Equal(t, listContactsV, methods[0]["replacement_method_id"])
	require.Contains(t, res.Text, "deprecated, use "+listContactsV)

	res = f.router.Handle(context.Background(), Request{Op: OpListMethods, Args: map[string]any{"capability": "ads"}})
	require.Len(t, res.Data["methods"].([]map[string]any), 1)
	require.Equal(t, 0, f.ads.Total()+f.crm.Total())
}

func TestStatusReportsEveryIntegration(t *testing.T) {
	f := newFixture(t)
	f.crm.SetStatus(integration.Status{Auth: integration.AuthMissing, Detail: "HUBSPOT_TOKEN not set"})

	res := f.router.Handle(context.Background(), Request{Op: OpStatus})

	require.True(t, res.OK)
	statuses := res.Data["integrations"].(map[string]any)
	require.Len(t, statuses, 2)
	require.Equal(t, integration.AuthMissing, statuses["crm"].(integration.Status).Auth)
	require.Contains(t, res.Text, "crm: unavailable, auth missing (HUBSPOT_TOKEN not set)")
	require.Equal(t, 0, f.ads.Total()+f.crm.Total())
}

func TestRouteDefaultPlan(t *testing.T) {
	f := newFixture(t)
	prov := &integration.Provenance{SourceType: integration.SourceUserDirective, SourceRef: "turn-3"}
	res := f.router.Handle(context.Background(), Request{
		Op:         "campaigns",
		Args:       map[string]any{"limit": 5},
		TraceID:    "trace-7",
		Provenance: prov,
		DryRun:     true,
	})

	require.True(t, res.OK)
	require.Len(t, res.Results, 1)
	require.Equal(t, "trace-7", res.Results[0].TraceID)
	require.Equal(t, prov, res.Results[0].Meta.Provenance)
	require.Len(t, res.Data["items"], 1)
	call, ok := f.ads.LastCall(listCampaigns)
	require.True(t, ok)
	require.True(t, call.DryRun)
	n, _ := call.IntArg("limit")
	require.Equal(t, int64(5), n)
}

func TestRouteMultipleMethods(t *testing.T) {
	f := newFixture(t)
	res := f.router.Handle(context.Background(), Request{Op: "overview"})

	require.True(t, res.OK)
	require.Len(t, res.Results, 2)
	require.Equal(t, res.Results[0].TraceID, res.Results[1].TraceID)
	require.Contains(t, res.Data, listCampaigns)
	require.Contains(t, res.Data, listContactsV)

	f.crm.Fails(listContactsV, callerrors.New(callerrors.AuthRequired, "token expired"))
	res = f.router.Handle(context.Background(), Request{Op: "overview"})
	require.False(t, res.OK)
	require.True(t, res.Results[0].OK)
	require.Equal(t, callerrors.AuthRequired, res.Error.Code)
	require.Nil(t, res.Data)
}

func TestRouteCustomPlan(t *testing.T) {
	f := newFixture(t)
	res := f.router.Handle(context.Background(), Request{Op: "contacts"})
	require.True(t, res.OK)
	call, _ := f.crm.LastCall(listContactsV)
	n, _ := call.IntArg("limit")
	require.Equal(t, int64(25), n)

	res = f.router.Handle(context.Background(), Request{Op: "contacts", Args: map[string]any{"segment": "vip"}})
	require.False(t, res.OK)
	require.Equal(t, callerrors.ValidationFailed, res.Error.Code)
	require.Contains(t, res.Error.Message, "segment")
}

func TestRouteWithRetry(t *testing.T) {
	f := newFixture(t, WithRetry(retry.WithDefaultPolicy(integration.RetryPolicy{MaxRetries: 2})))
	f.ads.Fails(listCampaigns, callerrors.New(callerrors.ProviderUnavailable, "503"))

	res := f.router.Handle(context.Background(), Request{Op: "campaigns"})

	require.False(t, res.OK)
	require.Equal(t, 3, f.ads.Calls(listCampaigns))
}

func TestNewValidatesOperations(t *testing.T) {
	backend := stub.New()
	in, err := integration.New("ads", backend, []method.Spec{spec(listCampaigns)})
	require.NoError(t, err)
	dup, err := integration.New("ads", backend, []method.Spec{spec(listContacts)})
	require.NoError(t, err)

	cases := map[string]struct {
		ins []*integration.Integration
		ops []Operation
		msg string
	}{
		"unknown method": {[]*integration.Integration{in}, []Operation{{Name: "x", Methods: []method.Ident{"ghost.vendor.list.v1"}}}, "unknown method"},
		"reserved":       {[]*integration.Integration{in}, []Operation{{Name: "status", Methods: []method.Ident{listCampaigns}}}, "reserved"},
		"duplicate op": {[]*integration.Integration{in}, []Operation{
			{Name: "x", Methods: []method.Ident{listCampaigns}},
			{Name: "x", Methods: []method.Ident{listCampaigns}},
		}, "duplicate operation"},
		"no methods":      {[]*integration.Integration{in}, []Operation{{Name: "x"}}, "references no method"},
		"duplicate integ": {[]*integration.Integration{in, dup}, nil, "duplicate integration"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New("tool", "", tc.ins, tc.ops)
			require.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestUsageDocuments(t *testing.T) {
	f := newFixture(t, WithCatalog())
	usage := f.router.Usage()
	require.Len(t, usage, 7)
	require.Contains(t, usage["contacts"], "Pass limit to bound the page size.")
	require.Contains(t, usage["contacts"], listContactsV+" (safe_read)")
	require.Contains(t, f.router.UsageDoc(), "# growth_data")
	require.Equal(t, "growth_data", f.router.Name())
	require.Len(t, f.router.Integrations(), 2)
}
