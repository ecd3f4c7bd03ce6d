package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/reel/pkg/validation"
)

const (
	envPrefix     = "REEL_"
	envConfigFile = "REEL_CONFIG"
)

var listKeys = map[string]struct{}{
	"trending_ids": {},
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New)
//  2. file (YAML) if REEL_CONFIG is set
//  3. env (prefix REEL_)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// REEL_QUEUE_SIZE -> queue_size. Underscores are kept to match the koanf tags.
	// List values are comma separated: REEL_TRENDING_IDS=1,2,3.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if _, ok := listKeys[key]; ok {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field rules and the cross-field constraints.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch {
	case c.Predictor == PredictorFactors && c.ModelPath == "":
		return fmt.Errorf("%w: predictor %q requires model_path", ErrInvalidConfig, c.Predictor)
	case c.Predictor == PredictorRemote && c.PredictorURL == "":
		return fmt.Errorf("%w: predictor %q requires predictor_url", ErrInvalidConfig, c.Predictor)
	}
	if c.WorkerCount > 0 && c.QueueSize < len(c.TrendingIDs) {
		return fmt.Errorf("%w: queue_size must hold every trending id", ErrInvalidConfig)
	}
	if c.MaxRequestBudget < c.PerCallBudget {
		return fmt.Errorf("%w: max_request_budget must be >= per_call_budget", ErrInvalidConfig)
	}
	return nil
}
