package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main warden configuration
type Config struct {
	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// AI provider credentials
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Session registries
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Tool-server catalog file
	Catalog CatalogConfig `json:"catalog" mapstructure:"catalog"`

	// Retrieval augmentation
	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Audit sink
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider credential
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// SessionsConfig holds per-registry session settings
type SessionsConfig struct {
	Interactive RegistryConfig `json:"interactive" mapstructure:"interactive"`
	Embedded    RegistryConfig `json:"embedded" mapstructure:"embedded"`

	// Cleanup deadline shared by eviction and shutdown, in seconds
	CleanupTimeoutSeconds int `json:"cleanup_timeout_seconds" mapstructure:"cleanup_timeout_seconds"`

	// Cap on each session's retained message log
	MaxMessages int `json:"max_messages" mapstructure:"max_messages"`

	// System preamble prepended to every turn
	Preamble string `json:"preamble" mapstructure:"preamble"`
}

// RegistryConfig configures one session registry
type RegistryConfig struct {
	IdleTimeoutMinutes int  `json:"idle_timeout_minutes" mapstructure:"idle_timeout_minutes"`
	Restorable         bool `json:"restorable" mapstructure:"restorable"`
}

// IdleTimeout returns the registry's idle timeout as a duration
func (r RegistryConfig) IdleTimeout() time.Duration {
	return time.Duration(r.IdleTimeoutMinutes) * time.Minute
}

// CatalogConfig points at the tool-server catalog file
type CatalogConfig struct {
	File string `json:"file" mapstructure:"file"`

	// Watch reloads the catalog on file changes
	Watch bool `json:"watch" mapstructure:"watch"`
}

// RetrievalConfig holds retrieval augmentation settings
type RetrievalConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	EmbeddingModel string `json:"embedding_model" mapstructure:"embedding_model"`
	Database       string `json:"database" mapstructure:"database"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// AuditConfig holds audit sink configuration
type AuditConfig struct {
	File string `json:"file" mapstructure:"file"`
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Sessions: SessionsConfig{
			Interactive: RegistryConfig{
				IdleTimeoutMinutes: 30,
				Restorable:         true,
			},
			Embedded: RegistryConfig{
				IdleTimeoutMinutes: 240,
				Restorable:         false,
			},
			CleanupTimeoutSeconds: 30,
			MaxMessages:           200,
		},
		Catalog: CatalogConfig{
			Watch: true,
		},
		Retrieval: RetrievalConfig{
			Enabled:        false,
			EmbeddingModel: "text-embedding-3-small",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9290",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
	}

	if c.Sessions.Interactive.IdleTimeoutMinutes <= 0 {
		return fmt.Errorf("interactive idle timeout must be positive")
	}
	if c.Sessions.Embedded.IdleTimeoutMinutes <= 0 {
		return fmt.Errorf("embedded idle timeout must be positive")
	}
	if c.Sessions.CleanupTimeoutSeconds <= 0 {
		return fmt.Errorf("cleanup timeout must be positive")
	}

	if c.Retrieval.Enabled && c.Retrieval.EmbeddingModel == "" {
		return fmt.Errorf("retrieval is enabled but no embedding model is configured")
	}

	return nil
}

// APIKey returns the highest-priority key for a provider, or "".
func (c *Config) APIKey(provider string) string {
	best := ""
	bestPriority := -1
	for _, p := range c.AI.Profiles {
		if p.Provider != provider {
			continue
		}
		if p.Priority > bestPriority {
			best = p.APIKey
			bestPriority = p.Priority
		}
	}
	return best
}
