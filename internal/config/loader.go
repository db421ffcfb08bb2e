package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "taskpilot.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TASKPILOT_PORT")
	setString(&cfg.Server.CORSOrigin, "TASKPILOT_CORS_ORIGIN")
	setString(&cfg.Store.Path, "TASKPILOT_STORE_PATH")
	setString(&cfg.LLM.URL, "TASKPILOT_LLM_URL")
	setString(&cfg.LLM.APIKey, "TASKPILOT_LLM_API_KEY")
	setString(&cfg.LLM.Model, "TASKPILOT_LLM_MODEL")
	setInt(&cfg.Agent.MaxIterations, "TASKPILOT_AGENT_MAX_ITERATIONS")
	setDuration(&cfg.Agent.RunTimeout, "TASKPILOT_AGENT_RUN_TIMEOUT")
	setInt(&cfg.Agent.MaxTokens, "TASKPILOT_AGENT_MAX_TOKENS")
	setString(&cfg.Agent.SystemPrompt, "TASKPILOT_AGENT_SYSTEM_PROMPT")
	setDuration(&cfg.Cache.RegistryTTL, "TASKPILOT_CACHE_REGISTRY_TTL")
	setString(&cfg.Logging.Level, "TASKPILOT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TASKPILOT_LOG_SERVICE")
	setString(&cfg.Telemetry.OTLPEndpoint, "TASKPILOT_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if cfg.LLM.URL == "" {
		return errors.New("llm.url is required")
	}
	if cfg.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if cfg.Agent.MaxIterations < 1 {
		return errors.New("agent.max_iterations must be >= 1")
	}
	if cfg.Agent.RunTimeout <= 0 {
		return errors.New("agent.run_timeout must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
