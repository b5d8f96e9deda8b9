package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration // stored as a string, validated with time.ParseDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	alias   string // fallback env var name, read when env is unset
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "ICEBREAKER_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "ICEBREAKER_SERVER_PORT", alias: "PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "collector.base_url", typ: kString, env: "ICEBREAKER_COLLECTOR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Collector.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Collector.BaseURL },
	},
	{
		key: "collector.api_token", typ: kString, env: "ICEBREAKER_COLLECTOR_API_TOKEN", alias: "BRIGHTDATA_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Collector.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Collector.APIToken },
	},
	{
		key: "collector.dataset_id", typ: kString, env: "ICEBREAKER_COLLECTOR_DATASET_ID",
		apply:   func(cfg *Config, v any) { cfg.Collector.DatasetID = v.(string) },
		extract: func(cfg Config) any { return cfg.Collector.DatasetID },
	},
	{
		key: "collector.poll_interval", typ: kDuration, env: "ICEBREAKER_COLLECTOR_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Collector.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Collector.PollInterval },
	},
	{
		key: "collector.max_attempts", typ: kInt, env: "ICEBREAKER_COLLECTOR_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Collector.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Collector.MaxAttempts },
	},
	{
		key: "insight.provider", typ: kString, env: "ICEBREAKER_INSIGHT_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Insight.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Insight.Provider },
	},
	{
		key: "insight.base_url", typ: kString, env: "ICEBREAKER_INSIGHT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Insight.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Insight.BaseURL },
	},
	{
		key: "insight.api_key", typ: kString, env: "ICEBREAKER_INSIGHT_API_KEY", alias: "OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Insight.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Insight.APIKey },
	},
	{
		key: "insight.model", typ: kString, env: "ICEBREAKER_INSIGHT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Insight.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Insight.Model },
	},
	{
		key: "insight.max_payload_bytes", typ: kInt, env: "ICEBREAKER_INSIGHT_MAX_PAYLOAD_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Insight.MaxPayloadBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Insight.MaxPayloadBytes },
	},
	{
		key: "staging.backend", typ: kString, env: "ICEBREAKER_STAGING_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Staging.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.Backend },
	},
	{
		key: "staging.dir", typ: kString, env: "ICEBREAKER_STAGING_DIR",
		apply:   func(cfg *Config, v any) { cfg.Staging.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.Dir },
	},
	{
		key: "staging.memory_entries", typ: kInt, env: "ICEBREAKER_STAGING_MEMORY_ENTRIES",
		apply:   func(cfg *Config, v any) { cfg.Staging.MemoryEntries = v.(int) },
		extract: func(cfg Config) any { return cfg.Staging.MemoryEntries },
	},
	{
		key: "staging.s3_endpoint", typ: kString, env: "ICEBREAKER_STAGING_S3_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Staging.S3Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.S3Endpoint },
	},
	{
		key: "staging.s3_bucket", typ: kString, env: "ICEBREAKER_STAGING_S3_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Staging.S3Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.S3Bucket },
	},
	{
		key: "staging.s3_region", typ: kString, env: "ICEBREAKER_STAGING_S3_REGION",
		apply:   func(cfg *Config, v any) { cfg.Staging.S3Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.S3Region },
	},
	{
		key: "staging.s3_access_key", typ: kString, env: "ICEBREAKER_STAGING_S3_ACCESS_KEY",
		apply:   func(cfg *Config, v any) { cfg.Staging.S3AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.S3AccessKey },
	},
	{
		key: "staging.s3_secret_key", typ: kString, env: "ICEBREAKER_STAGING_S3_SECRET_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Staging.S3SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.S3SecretKey },
	},
	{
		key: "staging.s3_use_ssl", typ: kBool, env: "ICEBREAKER_STAGING_S3_USE_SSL",
		apply:   func(cfg *Config, v any) { cfg.Staging.S3UseSSL = v.(bool) },
		extract: func(cfg Config) any { return cfg.Staging.S3UseSSL },
	},
	{
		key: "storage.driver", typ: kString, env: "ICEBREAKER_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ICEBREAKER_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.dsn", typ: kString, env: "ICEBREAKER_STORAGE_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "worker.concurrency", typ: kInt, env: "ICEBREAKER_WORKER_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Worker.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Worker.Concurrency },
	},
	{
		key: "worker.poll_interval", typ: kDuration, env: "ICEBREAKER_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "log.level", typ: kString, env: "ICEBREAKER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "ICEBREAKER_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

func applyBackend(cfg *Config, b keyStore) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s: %v. Using default value.\n", s.key, err)
				continue
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetDuration(s.key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s: %v. Using default value.\n", s.key, err)
				continue
			}
			if ok {
				s.apply(cfg, v.String())
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := s.env, os.Getenv(s.env)
		if raw == "" && s.alias != "" {
			name, raw = s.alias, os.Getenv(s.alias)
		}
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kDuration:
			if _, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, raw)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}
