package httpjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"gopkg.in/yaml.v3"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/integration/schema"
)

type (
	// DefinitionFile is the YAML document declaring REST/JSON provider
	// integrations.
	DefinitionFile struct {
		Providers []Definition `yaml:"providers"`
	}

	// Definition declares one provider integration.
	Definition struct {
		Name      string            `yaml:"name"`
		BaseURL   string            `yaml:"base_url"`
		Headers   map[string]string `yaml:"headers"`
		Auth      AuthDefinition    `yaml:"auth"`
		RateLimit *RateLimit        `yaml:"rate_limit"`
		Methods   []MethodDef       `yaml:"methods"`
	}

	// AuthDefinition selects the credential source. Secrets are never part
	// of the file: only the names of the environment variables holding them.
	AuthDefinition struct {
		// TokenEnv names the variable holding a static bearer token.
		TokenEnv string `yaml:"token_env"`
		// OAuth configures a client-credentials grant.
		OAuth *OAuthDefinition `yaml:"oauth"`
	}

	// OAuthDefinition configures an OAuth2 client-credentials grant.
	OAuthDefinition struct {
		TokenURL        string   `yaml:"token_url"`
		ClientIDEnv     string   `yaml:"client_id_env"`
		ClientSecretEnv string   `yaml:"client_secret_env"`
		Scopes          []string `yaml:"scopes"`
	}

	// RateLimit throttles outgoing requests.
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	}

	// MethodDef declares one method with its endpoint and JSON Schemas.
	MethodDef struct {
		ID            string         `yaml:"id"`
		Description   string         `yaml:"description"`
		Idempotency   string         `yaml:"idempotency"`
		Capabilities  []string       `yaml:"capabilities"`
		AuthScopes    []string       `yaml:"auth_scopes"`
		RateLimitHint string         `yaml:"rate_limit_hint"`
		CostHint      string         `yaml:"cost_hint"`
		Deprecated    bool           `yaml:"deprecated"`
		Replacement   string         `yaml:"replacement"`
		Endpoint      EndpointDef    `yaml:"endpoint"`
		Input         map[string]any `yaml:"input"`
		Output        map[string]any `yaml:"output"`
	}

	// EndpointDef is the YAML form of Endpoint.
	EndpointDef struct {
		Method          string   `yaml:"method"`
		Path            string   `yaml:"path"`
		Query           []string `yaml:"query"`
		CursorParam     string   `yaml:"cursor_param"`
		NextCursorField string   `yaml:"next_cursor_field"`
		ItemsField      string   `yaml:"items_field"`
		DryRunParam     string   `yaml:"dry_run_param"`
	}

	// BuildOptions supplies the runtime dependencies of built integrations.
	BuildOptions struct {
		// Cache stores OAuth tokens. Defaults to a per-provider memory cache.
		Cache TokenCache
		// Getenv resolves credential variables. Defaults to os.Getenv.
		Getenv func(string) string
		// Backend options applied to every provider, such as WithLogger.
		Backend []Option
		// Integration options applied to every provider.
		Integration []integration.Option
	}
)

// ParseDefinitions decodes a definition file. Unknown keys are rejected.
func ParseDefinitions(r io.Reader) (*DefinitionFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f DefinitionFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("httpjson: parse definitions: %w", err)
	}
	return &f, nil
}

// LoadDefinitions reads and decodes the definition file at path.
func LoadDefinitions(path string) (*DefinitionFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("httpjson: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseDefinitions(f)
}

// Build constructs every declared integration.
func (f *DefinitionFile) Build(opts BuildOptions) ([]*integration.Integration, error) {
	out := make([]*integration.Integration, 0, len(f.Providers))
	var errs []error
	for _, d := range f.Providers {
		in, err := d.Build(opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, in)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Build constructs the integration declared by d.
func (d *Definition) Build(opts BuildOptions) (*integration.Integration, error) {
	if d.Name == "" {
		return nil, errors.New("httpjson: provider name is required")
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	endpoints := make(map[string]Endpoint, len(d.Methods))
	specs := make([]method.Spec, 0, len(d.Methods))
	for _, m := range d.Methods {
		spec, err := m.spec()
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", d.Name, err)
		}
		specs = append(specs, spec)
		endpoints[m.ID] = Endpoint(m.Endpoint)
	}

	bopts := []Option{WithTokenSource(d.tokenSource(getenv, opts.Cache))}
	if d.RateLimit != nil {
		bopts = append(bopts, WithRateLimit(d.RateLimit.RPS, d.RateLimit.Burst))
	}
	for k, v := range d.Headers {
		bopts = append(bopts, WithHeader(k, v))
	}
	bopts = append(bopts, opts.Backend...)
	b, err := New(d.BaseURL, endpoints, bopts...)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", d.Name, err)
	}
	return NewIntegration(d.Name, b, specs, opts.Integration...)
}

func (d *Definition) tokenSource(getenv func(string) string, cache TokenCache) TokenSource {
	switch {
	case d.Auth.OAuth != nil:
		o := d.Auth.OAuth
		cfg := &clientcredentials.Config{
			ClientID:     getenv(o.ClientIDEnv),
			ClientSecret: getenv(o.ClientSecretEnv),
			TokenURL:     o.TokenURL,
			Scopes:       o.Scopes,
		}
		return NewCachingTokenSource(d.Name, ClientCredentials(cfg, nil), cache, 30*time.Second)
	case d.Auth.TokenEnv != "":
		return StaticToken(getenv(d.Auth.TokenEnv))
	default:
		return nil
	}
}

func (m MethodDef) spec() (method.Spec, error) {
	id, err := method.ParseIdent(m.ID)
	if err != nil {
		return method.Spec{}, err
	}
	input, err := compileDoc(m.ID+".input", m.Input)
	if err != nil {
		return method.Spec{}, err
	}
	output, err := compileDoc(m.ID+".output", m.Output)
	if err != nil {
		return method.Spec{}, err
	}
	spec := method.Spec{
		ID:            id,
		Description:   m.Description,
		Input:         input,
		Output:        output,
		Capabilities:  m.Capabilities,
		AuthScopes:    m.AuthScopes,
		RateLimitHint: m.RateLimitHint,
		Idempotency:   method.Idempotency(m.Idempotency),
		CostHint:      m.CostHint,
		Deprecated:    m.Deprecated,
	}
	if m.Replacement != "" {
		if spec.ReplacementID, err = method.ParseIdent(m.Replacement); err != nil {
			return method.Spec{}, fmt.Errorf("method %s replacement: %w", m.ID, err)
		}
	}
	return spec, nil
}

// compileDoc compiles a JSON Schema given as decoded YAML. An absent schema
// accepts any object.
func compileDoc(name string, doc map[string]any) (*schema.Schema, error) {
	if doc == nil {
		return schema.Any(), nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	return schema.Compile(name, raw)
}
