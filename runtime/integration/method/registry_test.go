package method

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/launchlab/integrations/runtime/integration/schema"
)

func testSpec(id string) Spec {
	return Spec{
		ID:          Ident(id),
		Input:       schema.Any(),
		Output:      schema.Any(),
		Idempotency: SafeRead,
	}
}

func TestNewRegistryRejectsEmpty(t *testing.T) {
	_, err := NewRegistry()
	require.ErrorIs(t, err, ErrEmptyRegistry)
	require.Panics(t, func() { MustNewRegistry() })
}

func TestNewRegistryReportsEveryProblem(t *testing.T) {
	mismatch := testSpec("stripe.invoices.list.v1")
	mismatch.Provider = "hubspot"
	noIdem := testSpec("stripe.invoices.get.v1")
	noIdem.Idempotency = ""
	noSchema := testSpec("stripe.invoices.void.v1")
	noSchema.Input = nil
	noSchema.Output = nil
	deprecated := testSpec("stripe.invoices.send.v1")
	deprecated.Deprecated = true
	self := testSpec("stripe.invoices.pay.v1")
	self.ReplacementID = "stripe.invoices.pay.v1"

	_, err := NewRegistry(
		testSpec("not-an-id"),
		mismatch,
		noIdem,
		noSchema,
		deprecated,
		self,
		testSpec("stripe.charges.list.v1"),
		testSpec("stripe.charges.list.v1"),
	)
	require.Error(t, err)

	var reasons []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var se *SpecError
		require.True(t, errors.As(e, &se))
		reasons = append(reasons, se.Reason)
	}
	require.Len(t, reasons, 8)
	require.Contains(t, err.Error(), "does not match id provider")
	require.Contains(t, err.Error(), "unknown idempotency class")
	require.Contains(t, err.Error(), "missing input schema")
	require.Contains(t, err.Error(), "missing output schema")
	require.Contains(t, err.Error(), "deprecated without replacement id")
	require.Contains(t, err.Error(), "replacement id refers to itself")
	require.Contains(t, err.Error(), "duplicate id")
}

func TestRegistryLookupAndEnumeration(t *testing.T) {
	v1 := testSpec("stripe.invoices.list.v1")
	v1.Deprecated = true
	v1.ReplacementID = "stripe.invoices.list.v2"
	v1.Capabilities = []string{"read", "billing"}
	v2 := testSpec("stripe.invoices.list.v2")
	v2.Capabilities = []string{"read", "billing"}
	crm := testSpec("hubspot.contacts.create.v1")
	crm.Idempotency = NonIdempotentWrite
	crm.Capabilities = []string{"write"}

	reg := MustNewRegistry(v2, crm, v1)
	require.Equal(t, 3, reg.Len())

	s, ok := reg.Resolve("stripe.invoices.list.v1")
	require.True(t, ok)
	require.True(t, s.Deprecated)
	require.Equal(t, "stripe", s.Provider)

	_, ok = reg.Resolve("stripe.invoices.list")
	require.False(t, ok)
	_, ok = reg.Resolve("ghost.vendor.list.v1")
	require.False(t, ok)

	require.Equal(t, []Ident{
		"hubspot.contacts.create.v1",
		"stripe.invoices.list.v1",
		"stripe.invoices.list.v2",
	}, reg.IDs())
	require.Equal(t, []string{"hubspot", "stripe"}, reg.Providers())

	versions := reg.Versions("stripe.invoices.list")
	require.Len(t, versions, 2)
	require.Equal(t, 1, versions[0].ID.Version())
	require.Equal(t, 2, versions[1].ID.Version())

	require.Len(t, reg.Filter("billing"), 2)
	require.Len(t, reg.Filter("write"), 1)
	require.Empty(t, reg.Filter("delete"))
}

func TestRegistryDoesNotAliasCallerSpecs(t *testing.T) {
	in := testSpec("stripe.invoices.list.v1")
	in.Capabilities = []string{"read"}
	reg := MustNewRegistry(in)
	in.Capabilities[0] = "write"
	in.Description = "changed"

	s, _ := reg.Resolve("stripe.invoices.list.v1")
	require.Equal(t, []string{"read"}, s.Capabilities)
	require.Empty(t, s.Description)

	specs := reg.Specs()
	specs[0] = nil
	require.NotNil(t, reg.Specs()[0])
}
