package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/launchlab/integrations/config"
	"github.com/launchlab/integrations/features/backend/anthropic"
	"github.com/launchlab/integrations/features/backend/bedrock"
	"github.com/launchlab/integrations/features/backend/httpjson"
	"github.com/launchlab/integrations/features/backend/openai"
	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/retry"
	"github.com/launchlab/integrations/runtime/integration/router"
	"github.com/launchlab/integrations/runtime/telemetry"
)

// tokenCachePrefix namespaces OAuth tokens shared through Redis.
const tokenCachePrefix = "integrations:token:"

// app wires the integrations and tools configured by Settings.
type app struct {
	settings     *config.Settings
	logger       telemetry.Logger
	llms         []*integration.Integration
	rest         []*integration.Integration
	integrations []*integration.Integration
	tools        map[string]*router.Router
	closers      []func() error
}

func newApp(ctx context.Context, s *config.Settings) (*app, error) {
	a := &app{
		settings: s,
		logger:   telemetry.NewClueLogger("service", "integrations"),
		tools:    make(map[string]*router.Router),
	}
	opts := []integration.Option{
		integration.WithLogger(a.logger),
		integration.WithMetrics(telemetry.NewClueMetrics()),
		integration.WithTracer(telemetry.NewClueTracer()),
		integration.WithDefaultTimeout(s.CallTimeout),
	}
	if err := a.addChat(ctx, opts); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	if err := a.addREST(ctx, opts); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.integrations = append(append([]*integration.Integration(nil), a.llms...), a.rest...)
	if err := a.buildTools(ctx); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

// Close releases connections opened by the app.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) addChat(ctx context.Context, opts []integration.Option) error {
	s := a.settings

	ab, err := anthropic.NewFromAPIKey(s.AnthropicAPIKey, anthropic.Options{DefaultModel: s.AnthropicModel, Logger: a.logger})
	if err != nil {
		return err
	}
	in, err := anthropic.NewIntegration(ab, opts...)
	if err != nil {
		return err
	}
	a.llms = append(a.llms, in)

	headers := make(map[string]string)
	if s.OpenAISiteURL != "" {
		headers["HTTP-Referer"] = s.OpenAISiteURL
	}
	if s.OpenAISiteName != "" {
		headers["X-Title"] = s.OpenAISiteName
	}
	ob, err := openai.NewFromConfig(openai.Config{
		APIKey:  s.OpenAIAPIKey,
		BaseURL: s.OpenAIBaseURL,
		Headers: headers,
	}, openai.Options{DefaultModel: s.OpenAIModel, Logger: a.logger})
	if err != nil {
		return err
	}
	if in, err = openai.NewIntegration(ob, opts...); err != nil {
		return err
	}
	a.llms = append(a.llms, in)

	if !s.BedrockEnabled {
		return nil
	}
	bb, err := bedrock.NewFromConfig(ctx, s.BedrockRegion, bedrock.Options{DefaultModel: s.BedrockModel, Logger: a.logger})
	if err != nil {
		return err
	}
	if in, err = bedrock.NewIntegration(bb, opts...); err != nil {
		return err
	}
	a.llms = append(a.llms, in)
	return nil
}

func (a *app) addREST(ctx context.Context, opts []integration.Option) error {
	if a.settings.ProvidersFile == "" {
		return nil
	}
	defs, err := httpjson.LoadDefinitions(a.settings.ProvidersFile)
	if err != nil {
		return err
	}
	bo := httpjson.BuildOptions{
		Backend:     []httpjson.Option{httpjson.WithLogger(a.logger)},
		Integration: opts,
	}
	if a.settings.RedisURL != "" {
		ropts, err := redis.ParseURL(a.settings.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(ropts)
		a.closers = append(a.closers, rdb.Close)
		bo.Cache = httpjson.NewRedisTokenCache(rdb, tokenCachePrefix)
		a.logger.Debug(ctx, "sharing oauth tokens through redis", "addr", ropts.Addr)
	}
	a.rest, err = defs.Build(bo)
	return err
}

// buildTools exposes the LLM integrations as the "llm" tool and each REST
// provider as a tool named after it.
func (a *app) buildTools(ctx context.Context) error {
	ropts := []router.Option{
		router.WithCatalog(),
		router.WithRetry(a.retryOptions()...),
		router.WithLogger(a.logger),
	}
	llm, err := router.New(llmTool, llmDescription, a.llms, []router.Operation{a.completeOperation(ctx)}, ropts...)
	if err != nil {
		return err
	}
	a.tools[llmTool] = llm

	for _, in := range a.rest {
		if _, ok := a.tools[in.Name()]; ok {
			return fmt.Errorf("provider %q clashes with an existing tool", in.Name())
		}
		r, err := router.New(in.Name(), fmt.Sprintf("Calls the %s API.", in.Name()),
			[]*integration.Integration{in}, restOperations(in.Registry()), ropts...)
		if err != nil {
			return fmt.Errorf("tool %s: %w", in.Name(), err)
		}
		a.tools[in.Name()] = r
	}
	return nil
}

func (a *app) retryOptions() []retry.Option {
	return []retry.Option{
		retry.WithMaxBackoff(a.settings.RetryMaxBackoff),
		retry.WithJitter(a.settings.RetryJitter),
		retry.WithLogger(a.logger),
	}
}

// lookup returns the integration serving id.
func (a *app) lookup(id string) (*integration.Integration, bool) {
	for _, in := range a.integrations {
		if _, ok := in.Registry().Resolve(id); ok {
			return in, true
		}
	}
	return nil, false
}

func (a *app) toolNames() []string {
	names := make([]string, 0, len(a.tools))
	for n := range a.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
