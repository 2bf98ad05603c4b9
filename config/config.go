// Package config loads settings from the environment, optionally seeded from
// a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// DefaultEnvFile is loaded when no env file is given and it exists.
const DefaultEnvFile = ".env"

// Settings configures the integrations CLI. Each field reads PREFIX_NAME and
// falls back to the unprefixed NAME, so the conventional provider variables
// such as ANTHROPIC_API_KEY work as is.
type Settings struct {
	LogFormat string `envconfig:"LOG_FORMAT" default:"auto"`
	Debug     bool   `envconfig:"DEBUG"`

	CallTimeout     time.Duration `envconfig:"CALL_TIMEOUT" default:"30s"`
	RetryMaxBackoff time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"10s"`
	RetryJitter     float64       `envconfig:"RETRY_JITTER" default:"0.1"`

	// ProvidersFile declares REST/JSON provider integrations.
	ProvidersFile string `envconfig:"PROVIDERS_FILE"`
	// RedisURL enables the shared OAuth token cache.
	RedisURL string `envconfig:"REDIS_URL"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5"`

	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel    string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAISiteURL  string `envconfig:"OPENAI_SITE_URL"`
	OpenAISiteName string `envconfig:"OPENAI_SITE_NAME"`

	BedrockEnabled bool   `envconfig:"BEDROCK_ENABLED"`
	BedrockRegion  string `envconfig:"AWS_REGION"`
	BedrockModel   string `envconfig:"BEDROCK_MODEL" default:"anthropic.claude-3-5-haiku-20241022-v1:0"`
}

// MustNew is like New but panics on error.
func MustNew[T any](prefix, envFile string) *T {
	conf, err := New[T](prefix, envFile)
	if err != nil {
		panic(err)
	}
	return conf
}

// New loads envFile into the process environment and decodes T from it with
// envconfig. When envFile is empty DefaultEnvFile is used if present.
// Variables already set in the environment win over the file.
func New[T any](prefix, envFile string) (*T, error) {
	path := strings.TrimSpace(envFile)
	if path != "" {
		if err := exportEnvironment(path); err != nil {
			return nil, fmt.Errorf("config: load env file: %w", err)
		}
	} else if err := exportEnvironmentIfExists(DefaultEnvFile); err != nil {
		return nil, fmt.Errorf("config: load default env file: %w", err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &conf, nil
}

func exportEnvironmentIfExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(path)
}

func exportEnvironment(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}
