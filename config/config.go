package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageNATS   = "nats"
)

// Duration is a time.Duration that reads and writes Go duration strings in JSON.
// Plain numbers are accepted as nanoseconds.
type Duration time.Duration

// D converts to time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val))
	case nil:
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Config is the complete cellbus server configuration.
type Config struct {
	NATS        NATSConfig        `json:"nats"`
	Registry    RegistryConfig    `json:"registry"`
	Dispatch    DispatchConfig    `json:"dispatch"`
	Composition CompositionConfig `json:"composition"`
	Server      ServerConfig      `json:"server"`
}

// NATSConfig defines the broker connection. An empty URL list disables NATS.
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`
}

// Enabled reports whether a broker is configured.
func (n NATSConfig) Enabled() bool { return len(n.URLs) > 0 }

// RegistryConfig configures the cell registry and its stores.
type RegistryConfig struct {
	Storage         string   `json:"storage"`
	EntryBucket     string   `json:"entry_bucket,omitempty"`
	ArtifactBucket  string   `json:"artifact_bucket,omitempty"`
	CacheTTL        Duration `json:"cache_ttl"`
	SigningEnabled  bool     `json:"signing_enabled,omitempty"`
	SigningKey      string   `json:"signing_key,omitempty"`
	EndpointBaseURL string   `json:"endpoint_base_url,omitempty"`
}

// BreakerConfig holds the three circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int      `json:"failure_threshold"`
	CallTimeout      Duration `json:"call_timeout"`
	ResetTimeout     Duration `json:"reset_timeout"`
}

// DispatchConfig configures the dispatch bus.
type DispatchConfig struct {
	DefaultChannel   string        `json:"default_channel"`
	HTTPTimeout      Duration      `json:"http_timeout"`
	BatchConcurrency int           `json:"batch_concurrency"`
	ValidateSchemas  bool          `json:"validate_schemas"`
	Breaker          BreakerConfig `json:"breaker"`
}

// CompositionConfig configures the orchestrator.
type CompositionConfig struct {
	HistorySize  int    `json:"history_size"`
	HealthWindow int    `json:"health_window"`
	TissueBucket string `json:"tissue_bucket,omitempty"`
}

// ServerConfig configures the operator HTTP surface.
type ServerConfig struct {
	HTTPPort        int      `json:"http_port"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	RateLimit       float64  `json:"rate_limit"` // requests per second, zero disables
	RateBurst       int      `json:"rate_burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Registry: RegistryConfig{
			Storage:        StorageMemory,
			EntryBucket:    "CELL_REGISTRY",
			ArtifactBucket: "CELL_ARTIFACTS",
			CacheTTL:       Duration(5 * time.Minute),
		},
		Dispatch: DispatchConfig{
			DefaultChannel:   "stable",
			HTTPTimeout:      Duration(30 * time.Second),
			BatchConcurrency: 8,
			ValidateSchemas:  true,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				CallTimeout:      Duration(10 * time.Second),
				ResetTimeout:     Duration(60 * time.Second),
			},
		},
		Composition: CompositionConfig{
			HistorySize:  100,
			HealthWindow: 10,
			TissueBucket: "CELL_TISSUES",
		},
		Server: ServerConfig{
			HTTPPort:        8080,
			ShutdownTimeout: Duration(10 * time.Second),
			RateLimit:       100,
			RateBurst:       10,
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.WrapFatal(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
			"Config", "Validate", "check configuration")
	}

	switch c.Registry.Storage {
	case StorageMemory:
	case StorageNATS:
		if !c.NATS.Enabled() {
			return invalid("registry.storage=nats requires nats.urls")
		}
		if c.Registry.EntryBucket == "" || c.Registry.ArtifactBucket == "" {
			return invalid("registry buckets must be named")
		}
	default:
		return invalid("unknown registry.storage %q", c.Registry.Storage)
	}
	if c.Registry.CacheTTL <= 0 {
		return invalid("registry.cache_ttl must be positive")
	}
	if c.Registry.SigningEnabled && c.Registry.SigningKey == "" {
		return invalid("registry.signing_key is required when signing is enabled")
	}
	if c.Registry.EndpointBaseURL != "" && !strings.Contains(c.Registry.EndpointBaseURL, "://") {
		return invalid("registry.endpoint_base_url must include a scheme")
	}

	if c.Dispatch.DefaultChannel == "" {
		return invalid("dispatch.default_channel is required")
	}
	if c.Dispatch.BatchConcurrency < 1 {
		return invalid("dispatch.batch_concurrency must be at least 1")
	}
	b := c.Dispatch.Breaker
	if b.FailureThreshold < 1 {
		return invalid("dispatch.breaker.failure_threshold must be at least 1")
	}
	if b.CallTimeout <= 0 || b.ResetTimeout <= 0 {
		return invalid("dispatch.breaker timeouts must be positive")
	}

	if c.Composition.HistorySize < 1 {
		return invalid("composition.history_size must be at least 1")
	}
	if c.Composition.HealthWindow < 1 || c.Composition.HealthWindow > c.Composition.HistorySize {
		return invalid("composition.health_window must be between 1 and history_size")
	}

	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return invalid("server.http_port out of range")
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateBurst < 1) {
		return invalid("server.rate_limit must be zero or positive with a burst of at least 1")
	}
	return nil
}

// String renders the configuration as indented JSON with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "****"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "****"
	}
	if masked.Registry.SigningKey != "" {
		masked.Registry.SigningKey = "****"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}
