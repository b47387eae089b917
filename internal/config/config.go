// Package config provides configuration for the gateway.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/telagent/gateway/internal/domain"
)

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Agent service
	AgentEndpoint  string
	AgentProjectID string
	AgentIDDefault string
	AgentIDUser    string
	AgentIDAdmin   string

	// Identity provider
	TenantID     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	OIDCIssuer   string
	Scopes       []string

	// Directory groups for role derivation
	AdminGroupID string
	UserGroupID  string

	// Downstream mail/calendar API
	GraphEndpoint string
	GraphScope    string

	// Backend app credentials for the on-behalf-of exchange
	BackendClientID     string
	BackendClientSecret string

	// Timeouts
	RunMaxWait        time.Duration
	RunPollInterval   time.Duration
	HTTPClientTimeout time.Duration
	FlowTTL           time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:            getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:         getEnv("DATABASE_URL", "file:gateway.db?cache=shared&mode=rwc"),
		AgentEndpoint:       getEnv("AGENT_ENDPOINT", ""),
		AgentProjectID:      getEnv("AGENT_PROJECT_ID", ""),
		AgentIDDefault:      getEnv("AGENT_ID", ""),
		AgentIDUser:         getEnv("AGENT_ID_USER", ""),
		AgentIDAdmin:        getEnv("AGENT_ID_ADMIN", ""),
		TenantID:            getEnv("TENANT_ID", ""),
		ClientID:            getEnv("CLIENT_ID", ""),
		ClientSecret:        getEnv("CLIENT_SECRET", ""),
		RedirectURI:         getEnv("REDIRECT_URI", ""),
		OIDCIssuer:          getEnv("OIDC_ISSUER", ""),
		Scopes:              []string{"openid", "profile", "email", "offline_access", getEnv("API_SCOPE", "User.Read")},
		AdminGroupID:        getEnv("ADMIN_GROUP_ID", ""),
		UserGroupID:         getEnv("USER_GROUP_ID", ""),
		GraphEndpoint:       getEnv("GRAPH_ENDPOINT", "https://graph.microsoft.com/v1.0"),
		GraphScope:          getEnv("GRAPH_SCOPE", "https://graph.microsoft.com/.default"),
		BackendClientID:     getEnv("BACKEND_CLIENT_ID", ""),
		BackendClientSecret: getEnv("BACKEND_CLIENT_SECRET", ""),
		RunMaxWait:          time.Duration(getEnvInt("RUN_MAX_WAIT_MS", 120000)) * time.Millisecond,
		RunPollInterval:     time.Duration(getEnvInt("RUN_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		HTTPClientTimeout:   time.Duration(getEnvInt("HTTP_CLIENT_TIMEOUT_MS", 60000)) * time.Millisecond,
		FlowTTL:             time.Duration(getEnvInt("FLOW_TTL_MS", 600000)) * time.Millisecond,
	}
	return cfg
}

// Validate checks the settings the chat path cannot run without. Settings
// only needed by specific operations (OBO credentials) are checked at
// request time by their owners.
func (c *Config) Validate() error {
	if c.AgentEndpoint == "" {
		return &domain.ConfigurationError{Setting: "AGENT_ENDPOINT"}
	}
	if c.AgentIDDefault == "" && c.AgentIDUser == "" && c.AgentIDAdmin == "" {
		return &domain.ConfigurationError{Setting: "AGENT_ID / AGENT_ID_USER / AGENT_ID_ADMIN"}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
