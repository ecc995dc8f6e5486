package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "VINROUTE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "VINROUTE_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "server.admin_token", typ: kString, env: "VINROUTE_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "server.cors_origins", typ: kString, env: "VINROUTE_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigins },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VINROUTE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "generation.openrouter_api_key", typ: kString, env: "VINROUTE_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generation.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.OpenRouterAPIKey },
	},
	{
		key: "generation.model", typ: kString, env: "VINROUTE_GENERATION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generation.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Model },
	},
	{
		key: "generation.base_url", typ: kString, env: "VINROUTE_GENERATION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Generation.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.BaseURL },
	},
	{
		key: "generation.timeout", typ: kString, env: "VINROUTE_GENERATION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generation.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Timeout },
	},
	{
		key: "planner.overall_timeout", typ: kString, env: "VINROUTE_PLANNER_OVERALL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Planner.OverallTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Planner.OverallTimeout },
	},
	{
		key: "planner.catalog_timeout", typ: kString, env: "VINROUTE_PLANNER_CATALOG_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Planner.CatalogTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Planner.CatalogTimeout },
	},
	{
		key: "planner.persist_timeout", typ: kString, env: "VINROUTE_PLANNER_PERSIST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Planner.PersistTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Planner.PersistTimeout },
	},
	{
		key: "planner.rate_limit_per_minute", typ: kInt, env: "VINROUTE_PLANNER_RATE_LIMIT_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.Planner.RateLimitPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.Planner.RateLimitPerMinute },
	},
	{
		key: "log.level", typ: kString, env: "VINROUTE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// readBackend fetches s from b in its declared type. ok is false when the key
// is absent.
func (s keySpec) readBackend(b ConfigBackend) (v any, ok bool, err error) {
	if s.typ == kInt {
		return b.GetInt(s.key)
	}
	return b.GetString(s.key)
}

// parse converts a raw string (env var or CLI argument) into the key's type.
func (s keySpec) parse(raw string) (any, error) {
	if s.typ != kInt {
		return raw, nil
	}
	return strconv.Atoi(raw)
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		v, ok, err := s.readBackend(b)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

// applyEnvOverrides lets VINROUTE_* variables win over the file. A malformed
// integer keeps the previous value.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := lookupEnv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring %s=%q: %v\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
