// Package config provides hierarchical configuration loading for TaskPilot.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the TaskPilot service.
type Config struct {
	Server    Server    `yaml:"server"`
	Store     Store     `yaml:"store"`
	LLM       LLM       `yaml:"llm"`
	Agent     Agent     `yaml:"agent"`
	Cache     Cache     `yaml:"cache"`
	Logging   Logging   `yaml:"logging"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Store holds the SQLite task store configuration.
type Store struct {
	Path string `yaml:"path"`
}

// LLM holds the chat completion backend configuration.
type LLM struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Agent holds conversation loop configuration.
type Agent struct {
	MaxIterations int           `yaml:"max_iterations"` // model call rounds per run (default: 3, max: 5)
	RunTimeout    time.Duration `yaml:"run_timeout"`    // wall-clock budget per run (default: 20s)
	MaxTokens     int           `yaml:"max_tokens"`     // completion token cap (default: 4096)
	SystemPrompt  string        `yaml:"system_prompt"`
}

// Cache holds tool registry cache configuration.
type Cache struct {
	RegistryTTL time.Duration `yaml:"registry_ttl"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Telemetry holds OpenTelemetry export configuration. An empty endpoint
// disables metric export.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

const defaultSystemPrompt = "You are TaskPilot, a task management assistant. " +
	"Use the provided tools to create, list, update, and delete the user's tasks. " +
	"Prefer acting over asking; confirm what you did in plain language. " +
	"Never expose internal task identifiers to the user."

// Defaults returns the built-in configuration values.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "*",
		},
		Store: Store{
			Path: "taskpilot.db",
		},
		LLM: LLM{
			URL:   "http://localhost:4000",
			Model: "openai/gpt-4o-mini",
		},
		Agent: Agent{
			MaxIterations: 3,
			RunTimeout:    20 * time.Second,
			MaxTokens:     4096,
			SystemPrompt:  defaultSystemPrompt,
		},
		Cache: Cache{
			RegistryTTL: 60 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "taskpilot",
		},
	}
}
