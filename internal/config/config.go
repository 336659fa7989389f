// Package config provides environment-driven configuration for the
// PipeCanvas backend: server settings, JWT, and password hashing.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// ServerConfig holds settings for the HTTP server process.
type ServerConfig struct {
	Port          int
	DatabaseURL   string
	WebhookSecret string // shared secret expected on billing webhook calls
}

// NewServerConfig reads server configuration from the environment.
// DATABASE_URL is required; PORT defaults to 8080. BILLING_WEBHOOK_SECRET
// is required so credit grants cannot be forged.
func NewServerConfig() (*ServerConfig, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %v", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("PORT out of range: %d", port)
	}

	secret := os.Getenv("BILLING_WEBHOOK_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("BILLING_WEBHOOK_SECRET is required but not set")
	}

	return &ServerConfig{
		Port:          port,
		DatabaseURL:   databaseURL,
		WebhookSecret: secret,
	}, nil
}

// AgentConfig holds settings for the background agent worker.
type AgentConfig struct {
	DatabaseURL  string
	Workers      int
	PollSeconds  int
	GeminiAPIKey string // optional; LLM-backed job types skip gracefully without it
}

// NewAgentConfig reads worker configuration from the environment.
// AGENT_WORKERS defaults to 2 and AGENT_POLL_SECONDS to 5.
func NewAgentConfig() (*AgentConfig, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	workers, err := intFromEnv("AGENT_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		return nil, fmt.Errorf("AGENT_WORKERS must be at least 1, got: %d", workers)
	}

	poll, err := intFromEnv("AGENT_POLL_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	if poll < 1 {
		return nil, fmt.Errorf("AGENT_POLL_SECONDS must be at least 1, got: %d", poll)
	}

	return &AgentConfig{
		DatabaseURL:  databaseURL,
		Workers:      workers,
		PollSeconds:  poll,
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
	}, nil
}

func intFromEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}
