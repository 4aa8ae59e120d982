// Package config loads typed configuration for every provider and
// core service from a YAML file overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProviderConfig mirrors the <provider>_* keys from spec §6.
type ProviderConfig struct {
	APIKey                 string        `yaml:"api_key"`
	APIURL                 string        `yaml:"api_url"`
	Timeout                time.Duration `yaml:"timeout"`
	MaxRetries             int           `yaml:"max_retries"`
	RetryDelay             time.Duration `yaml:"retry_delay"`
	CircuitFailureThreshold uint32       `yaml:"circuit_failure_threshold"`
	CircuitRecoveryTimeout  time.Duration `yaml:"circuit_recovery_timeout"`
}

// Config is the root configuration document.
type Config struct {
	ContentGenerationConcurrency int           `yaml:"content_generation_concurrency"`
	PopTaskPollInterval          time.Duration `yaml:"pop_task_poll_interval"`
	PopTaskTimeout                time.Duration `yaml:"pop_task_timeout"`
	StaleThresholdMinutes         int           `yaml:"stale_threshold_minutes"`
	RecoverySweepCron            string        `yaml:"recovery_sweep_cron"`

	DatabaseURL string `yaml:"database_url"`
	KafkaBroker string `yaml:"kafka_broker"`
	KafkaTopic  string `yaml:"kafka_topic"`

	Providers map[string]ProviderConfig `yaml:"providers"`
}

func defaults() *Config {
	return &Config{
		ContentGenerationConcurrency: 1,
		PopTaskPollInterval:          5 * time.Second,
		PopTaskTimeout:               5 * time.Minute,
		StaleThresholdMinutes:        5,
		Providers:                    map[string]ProviderConfig{},
	}
}

// Load reads a YAML config file (if path is non-empty and exists),
// loads a local .env file if present, then overlays process
// environment variables of the form `<PROVIDER>_API_KEY`,
// `<PROVIDER>_API_URL`, etc. for every provider already present in
// the YAML document or named in knownProviders.
func Load(path string, knownProviders ...string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	names := map[string]struct{}{}
	for name := range cfg.Providers {
		names[name] = struct{}{}
	}
	for _, name := range knownProviders {
		names[name] = struct{}{}
	}

	for name := range names {
		pc := cfg.Providers[name]
		prefix := strings.ToUpper(name)
		envString(prefix+"_API_KEY", &pc.APIKey)
		envString(prefix+"_API_URL", &pc.APIURL)
		envDuration(prefix+"_TIMEOUT", &pc.Timeout)
		envInt(prefix+"_MAX_RETRIES", &pc.MaxRetries)
		envDuration(prefix+"_RETRY_DELAY", &pc.RetryDelay)
		envUint32(prefix+"_CIRCUIT_FAILURE_THRESHOLD", &pc.CircuitFailureThreshold)
		envDuration(prefix+"_CIRCUIT_RECOVERY_TIMEOUT", &pc.CircuitRecoveryTimeout)
		cfg.Providers[name] = pc
	}

	envInt("CONTENT_GENERATION_CONCURRENCY", &cfg.ContentGenerationConcurrency)
	envDuration("POP_TASK_POLL_INTERVAL", &cfg.PopTaskPollInterval)
	envDuration("POP_TASK_TIMEOUT", &cfg.PopTaskTimeout)
	envInt("STALE_THRESHOLD_MINUTES", &cfg.StaleThresholdMinutes)
	envString("DATABASE_URL", &cfg.DatabaseURL)
	envString("KAFKA_BROKER", &cfg.KafkaBroker)
	envString("KAFKA_TOPIC", &cfg.KafkaTopic)

	return cfg, nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envUint32(key string, dst *uint32) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// StaleThreshold returns the recovery window as a time.Duration.
func (c *Config) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMinutes) * time.Minute
}
