package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Generation GenerationConfig
	Planner    PlannerConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port        int
	MaxConns    int
	AdminToken  string
	CORSOrigins string
}

type StorageConfig struct {
	DataDir string
}

type GenerationConfig struct {
	OpenRouterAPIKey string
	Model            string
	BaseURL          string
	Timeout          string
}

type PlannerConfig struct {
	OverallTimeout     string
	CatalogTimeout     string
	PersistTimeout     string
	RateLimitPerMinute int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        4100,
			MaxConns:    256,
			CORSOrigins: "*",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Generation: GenerationConfig{
			Model:   "anthropic/claude-sonnet-4",
			BaseURL: "https://openrouter.ai/api/v1",
			Timeout: "20s",
		},
		Planner: PlannerConfig{
			OverallTimeout:     "50s",
			CatalogTimeout:     "5s",
			PersistTimeout:     "3s",
			RateLimitPerMinute: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in increasing priority: built-in defaults, the
// JSON file at $XDG_CONFIG_HOME/vinroute/config.json, then VINROUTE_*
// environment variables. A .env file (or the file named by VINROUTE_ENV_FILE)
// is loaded into the environment first without overriding variables that are
// already set.
//
// Secrets are never read from the config file. If the OpenRouter API key is
// not in the environment, the secrets file at
// $XDG_DATA_HOME/vinroute/secrets.json is consulted. A missing key is not an
// error: generation then always degrades to the curated fallback.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), fileSecrets{path: secretsFilePath()})
}

func loadWith(b ConfigBackend, sec secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := sec.Get(s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

// loadDotEnv loads VINROUTE_ENV_FILE if set, otherwise ./.env when present.
func loadDotEnv() error {
	path := os.Getenv("VINROUTE_ENV_FILE")
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Timeouts holds the parsed duration settings.
type Timeouts struct {
	Overall    time.Duration
	Catalog    time.Duration
	Persist    time.Duration
	Generation time.Duration
}

// Durations parses the timeout settings. Unparseable or non-positive values
// fall back to the defaults with a warning.
func (c Config) Durations() Timeouts {
	d := defaults()
	return Timeouts{
		Overall:    parseDuration("planner.overall_timeout", c.Planner.OverallTimeout, d.Planner.OverallTimeout),
		Catalog:    parseDuration("planner.catalog_timeout", c.Planner.CatalogTimeout, d.Planner.CatalogTimeout),
		Persist:    parseDuration("planner.persist_timeout", c.Planner.PersistTimeout, d.Planner.PersistTimeout),
		Generation: parseDuration("generation.timeout", c.Generation.Timeout, d.Generation.Timeout),
	}
}

func parseDuration(key, raw, def string) time.Duration {
	v, err := time.ParseDuration(raw)
	if err == nil && v > 0 {
		return v
	}
	fmt.Fprintf(os.Stderr, "[WARN] invalid duration for %s=%q. Using default %s.\n", key, raw, def)
	v, _ = time.ParseDuration(def)
	return v
}

// Origins splits the comma-separated CORS origin list.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
