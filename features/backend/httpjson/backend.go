// Package httpjson implements a generic provider backend for REST APIs that
// speak JSON. Each method id maps to an Endpoint describing how call
// arguments become an HTTP request. Credentials, rate limiting and response
// metadata are handled here so that provider integrations only declare
// endpoints and schemas.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/telemetry"
)

const (
	headerRequestID          = "X-Request-Id"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	maxErrorBody             = 64 << 10
)

type (
	// Endpoint describes the HTTP request issued for one method.
	Endpoint struct {
		// Method is the HTTP method. Defaults to GET.
		Method string
		// Path is appended to the base URL. "{name}" placeholders are filled
		// from the call argument of the same name.
		Path string
		// Query lists arguments sent as query parameters. For requests
		// without a body, every argument not used in Path is sent as a query
		// parameter.
		Query []string
		// CursorParam is the query parameter carrying the call cursor.
		CursorParam string
		// NextCursorField names the response field holding the next page
		// cursor.
		NextCursorField string
		// ItemsField wraps top-level JSON array responses into an object
		// under this field. Defaults to "items".
		ItemsField string
		// DryRunParam is the query parameter asking the provider to validate
		// without side effects. Writes called with dry_run fail with
		// VALIDATION_FAILED when it is empty.
		DryRunParam string
	}

	// Backend is an integration.Backend for REST/JSON providers.
	Backend struct {
		baseURL   *url.URL
		endpoints map[string]Endpoint
		client    *http.Client
		tokens    TokenSource
		limiter   *rate.Limiter
		headers   http.Header
		logger    telemetry.Logger
	}

	// Option configures a Backend.
	Option func(*Backend)

	invalidator interface {
		Invalidate(ctx context.Context) error
	}
)

// WithHTTPClient sets the HTTP client. Defaults to a client without timeout;
// the dispatcher bounds every call.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) {
		if c != nil {
			b.client = c
		}
	}
}

// WithTokenSource configures bearer authentication.
func WithTokenSource(ts TokenSource) Option {
	return func(b *Backend) { b.tokens = ts }
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(b *Backend) {
		if rps > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(b *Backend) { b.headers.Add(key, value) }
}

// WithLogger configures the backend logger.
func WithLogger(l telemetry.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New returns a backend sending requests to baseURL.
func New(baseURL string, endpoints map[string]Endpoint, opts ...Option) (*Backend, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("httpjson: invalid base url %q", baseURL)
	}
	if len(endpoints) == 0 {
		return nil, errors.New("httpjson: at least one endpoint is required")
	}
	eps := make(map[string]Endpoint, len(endpoints))
	for id, ep := range endpoints {
		if _, err := method.ParseIdent(id); err != nil {
			return nil, fmt.Errorf("httpjson: endpoint %w", err)
		}
		if ep.Method == "" {
			ep.Method = http.MethodGet
		}
		ep.Method = strings.ToUpper(ep.Method)
		if ep.ItemsField == "" {
			ep.ItemsField = "items"
		}
		eps[id] = ep
	}
	b := &Backend{
		baseURL:   u,
		endpoints: eps,
		client:    &http.Client{},
		headers:   make(http.Header),
		logger:    telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		if o != nil {
			o(b)
		}
	}
	return b, nil
}

// NewIntegration bundles b with specs into an integration. Every spec must
// have an endpoint.
func NewIntegration(name string, b *Backend, specs []method.Spec, opts ...integration.Option) (*integration.Integration, error) {
	for _, s := range specs {
		if _, ok := b.endpoints[s.ID.String()]; !ok {
			return nil, fmt.Errorf("httpjson: no endpoint for method %q", s.ID)
		}
	}
	return integration.New(name, b, specs, opts...)
}

// Invoke implements integration.Backend.
func (b *Backend) Invoke(ctx context.Context, call *integration.Call) (*integration.Response, error) {
	ep, ok := b.endpoints[call.MethodID]
	if !ok {
		return nil, callerrors.Newf(callerrors.InternalError, "httpjson: no endpoint for %s", call.MethodID)
	}
	req, err := b.buildRequest(ctx, ep, call)
	if err != nil {
		return nil, err
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, callerrors.New(callerrors.RateLimited, "local rate limit would exceed call deadline")
		}
	}
	if b.tokens != nil {
		tok, err := b.tokens.Token(ctx)
		if err != nil {
			if errors.Is(err, ErrNoToken) {
				return nil, callerrors.New(callerrors.AuthRequired, "no credential configured")
			}
			return nil, callerrors.Newf(callerrors.AuthRequired, "obtain credential: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, callerrors.Normalize(err)
	}
	defer func() { _ = resp.Body.Close() }()
	meta := responseMeta(resp.Header)
	meta.LatencyMS = time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		code, msg := providerError(body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := b.tokens.(invalidator); ok {
				_ = inv.Invalidate(ctx)
			}
		}
		b.logger.Debug(ctx, "provider request failed",
			"method_id", call.MethodID, "status", resp.StatusCode, "provider_code", code)
		info := callerrors.FromHTTPStatus(resp.StatusCode, code, msg)
		return &integration.Response{Error: info, Meta: meta}, nil
	}

	raw, data, err := decodeBody(resp.Body, ep.ItemsField)
	if err != nil {
		return nil, callerrors.Newf(callerrors.ProviderUnavailable, "decode provider response: %v", err)
	}
	if data == nil {
		data = map[string]any{"status": resp.StatusCode}
	}
	if ep.NextCursorField != "" {
		if next, ok := data[ep.NextCursorField].(string); ok {
			meta.NextCursor = next
		}
	}
	return &integration.Response{OK: true, Data: data, Raw: raw, Meta: meta}, nil
}

// Status implements integration.StatusReporter. It reports credential
// presence without contacting the provider.
func (b *Backend) Status(ctx context.Context) integration.Status {
	if b.tokens == nil {
		return integration.Status{Available: true, Auth: integration.AuthNotRequired}
	}
	if s, ok := b.tokens.(StaticToken); ok && s == "" {
		return integration.Status{Available: false, Auth: integration.AuthMissing, Detail: "no credential configured"}
	}
	if c, ok := b.tokens.(*CachingTokenSource); ok {
		if _, cached := c.cached(ctx); !cached {
			return integration.Status{Available: true, Auth: integration.AuthConfigured, Detail: "token not fetched yet"}
		}
	}
	return integration.Status{Available: true, Auth: integration.AuthConfigured}
}

func (b *Backend) buildRequest(ctx context.Context, ep Endpoint, call *integration.Call) (*http.Request, error) {
	used := make(map[string]bool)
	path, err := expandPath(ep.Path, call.Args, used)
	if err != nil {
		return nil, err
	}
	u := b.baseURL.JoinPath(path)
	q := u.Query()
	hasBody := ep.Method == http.MethodPost || ep.Method == http.MethodPut || ep.Method == http.MethodPatch
	queryArgs := ep.Query
	if !hasBody && len(queryArgs) == 0 {
		for k := range call.Args {
			queryArgs = append(queryArgs, k)
		}
	}
	for _, name := range queryArgs {
		v, ok := call.Args[name]
		if !ok || used[name] {
			continue
		}
		used[name] = true
		q.Set(name, formatValue(v))
	}
	if call.Cursor != "" && ep.CursorParam != "" {
		q.Set(ep.CursorParam, call.Cursor)
	}
	if call.DryRun && ep.Method != http.MethodGet {
		if ep.DryRunParam == "" {
			return nil, callerrors.Newf(callerrors.ValidationFailed, "%s does not support dry_run", call.MethodID)
		}
		q.Set(ep.DryRunParam, "true")
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if hasBody {
		payload := make(map[string]any)
		for k, v := range call.Args {
			if !used[k] {
				payload[k] = v
			}
		}
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, callerrors.Internal(err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, ep.Method, u.String(), body)
	if err != nil {
		return nil, callerrors.Internal(err)
	}
	for k, vs := range b.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerRequestID, call.TraceID)
	return req, nil
}

func expandPath(tmpl string, args map[string]any, used map[string]bool) (string, error) {
	var b strings.Builder
	for {
		i := strings.IndexByte(tmpl, '{')
		if i < 0 {
			b.WriteString(tmpl)
			return b.String(), nil
		}
		j := strings.IndexByte(tmpl[i:], '}')
		if j < 0 {
			return "", callerrors.Newf(callerrors.InternalError, "httpjson: unterminated placeholder in %q", tmpl)
		}
		name := tmpl[i+1 : i+j]
		v, ok := args[name]
		if !ok {
			return "", callerrors.Validation(fmt.Sprintf("missing path argument %q", name),
				[]*callerrors.FieldIssue{{Field: name, Constraint: "missing_field"}})
		}
		used[name] = true
		b.WriteString(tmpl[:i])
		b.WriteString(url.PathEscape(formatValue(v)))
		tmpl = tmpl[i+j+1:]
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	case []any, map[string]any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func responseMeta(h http.Header) integration.Meta {
	meta := integration.Meta{ProviderRequestID: h.Get(headerRequestID)}
	if v := h.Get(headerRateLimitRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			meta.RateLimitRemaining = &n
		}
	}
	return meta
}

func decodeBody(r io.Reader, itemsField string) (any, map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	switch v := raw.(type) {
	case map[string]any:
		return raw, v, nil
	case []any:
		return raw, map[string]any{itemsField: v}, nil
	default:
		return raw, map[string]any{"value": v}, nil
	}
}

// providerError extracts a provider error code and message from common JSON
// error envelopes: {"code","message"}, {"error": "..."} and
// {"error": {"code"|"type", "message"}}.
func providerError(body []byte) (code, msg string) {
	var env map[string]any
	if err := json.Unmarshal(body, &env); err != nil {
		return "", strings.TrimSpace(string(body))
	}
	code = stringField(env, "code")
	msg = stringField(env, "message")
	switch e := env["error"].(type) {
	case string:
		if code == "" {
			code = e
		}
		if d := stringField(env, "error_description"); d != "" && msg == "" {
			msg = d
		}
	case map[string]any:
		if c := stringField(e, "code"); c != "" {
			code = c
		} else if t := stringField(e, "type"); t != "" && code == "" {
			code = t
		}
		if m := stringField(e, "message"); m != "" {
			msg = m
		}
	}
	return code, msg
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
