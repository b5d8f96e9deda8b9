package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Collector CollectorConfig
	Insight   InsightConfig
	Staging   StagingConfig
	Storage   StorageConfig
	Worker    WorkerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type CollectorConfig struct {
	BaseURL      string
	APIToken     string
	DatasetID    string
	PollInterval string
	MaxAttempts  int
}

type InsightConfig struct {
	Provider        string
	BaseURL         string
	APIKey          string
	Model           string
	MaxPayloadBytes int
}

type StagingConfig struct {
	Backend       string
	Dir           string
	MemoryEntries int
	S3Endpoint    string
	S3Bucket      string
	S3Region      string
	S3AccessKey   string
	S3SecretKey   string
	S3UseSSL      bool
}

type StorageConfig struct {
	Driver  string
	DataDir string
	DSN     string
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval string
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	defaultInsightBaseURL = "https://api.openai.com/v1"
	defaultInsightModel   = "gpt-4o-mini"
)

// ForProvider drops the OpenAI base URL and model defaults when another
// provider is selected, so that provider's own defaults apply.
func (c InsightConfig) ForProvider() InsightConfig {
	if c.Provider == "" || c.Provider == "openai" {
		return c
	}
	if c.BaseURL == defaultInsightBaseURL {
		c.BaseURL = ""
	}
	if c.Model == defaultInsightModel {
		c.Model = ""
	}
	return c
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5000,
		},
		Collector: CollectorConfig{
			BaseURL:      "https://api.brightdata.com",
			DatasetID:    "gd_l1viktl72bvl7bjuj0",
			PollInterval: "12s",
			MaxAttempts:  10,
		},
		Insight: InsightConfig{
			Provider: "openai",
			BaseURL:  defaultInsightBaseURL,
			Model:    defaultInsightModel,
		},
		Staging: StagingConfig{
			Backend:       "file",
			Dir:           defaultStagingDir(),
			MemoryEntries: 256,
			S3Bucket:      "icebreaker-staging",
			S3Region:      "us-east-1",
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		Worker: WorkerConfig{
			Concurrency:  2,
			PollInterval: "500ms",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the JSON file backend, a .env file in the
// working directory, environment variables and the secrets file.
//
// The file backend lives at $XDG_CONFIG_HOME/icebreaker/config.json.
// Environment variables (ICEBREAKER_*) override file values. Secrets are
// only read from the environment or from secrets.json in the data
// directory. Missing secrets are not an error here; see RequireSecrets.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()), secretsFile{})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadWith(b keyStore, ss secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := ss.Get("icebreaker", s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

// RequireSecrets reports the provider credentials a pipeline-running
// process cannot start without.
func (c Config) RequireSecrets() error {
	var missing []string
	if c.Collector.APIToken == "" {
		missing = append(missing, "collector API token (ICEBREAKER_COLLECTOR_API_TOKEN or BRIGHTDATA_API_TOKEN)")
	}
	if c.Insight.APIKey == "" && c.Insight.Provider != "ollama" {
		missing = append(missing, "insight API key (ICEBREAKER_INSIGHT_API_KEY or OPENAI_API_KEY)")
	}
	if c.Staging.Backend == "s3" && (c.Staging.S3AccessKey == "" || c.Staging.S3SecretKey == "") {
		missing = append(missing, "S3 credentials (staging.s3_access_key, ICEBREAKER_STAGING_S3_SECRET_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, "; "))
	}
	return nil
}
