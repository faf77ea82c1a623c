package gengate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the published free-tier limits of the two default
// endpoints and the retry schedule tuned against them.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 60 * time.Second
	DefaultJitter      = 0.1
	DefaultGracePeriod = 5 * time.Minute
)

// Config is the top-level gate configuration. It is read once at
// startup and treated as immutable afterwards.
type Config struct {
	Endpoints   []EndpointConfig `yaml:"endpoints"`
	Routing     RoutingConfig    `yaml:"routing"`
	Retry       RetryConfig      `yaml:"retry"`
	GracePeriod time.Duration    `yaml:"grace_period"`
}

// EndpointConfig sets the per-minute and per-day budgets for one named
// endpoint. A zero limit means the dimension is not enforced.
type EndpointConfig struct {
	Name              string `yaml:"name"`
	RequestsPerMinute int64  `yaml:"requests_per_minute"`
	TokensPerMinute   int64  `yaml:"tokens_per_minute"`
	RequestsPerDay    int64  `yaml:"requests_per_day"`
}

// RoutingConfig names the primary endpoint and its fallback.
type RoutingConfig struct {
	Primary  string `yaml:"primary"`
	Fallback string `yaml:"fallback"`
}

// RetryConfig parameterizes the retry/backoff schedule.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      float64       `yaml:"jitter"`
}

// DefaultConfig returns a configuration matching the default endpoint
// pair and retry schedule.
func DefaultConfig() Config {
	return Config{
		Endpoints: []EndpointConfig{
			{Name: "gemini-2.5-pro", RequestsPerMinute: 5, TokensPerMinute: 250_000, RequestsPerDay: 100},
			{Name: "gemini-2.5-flash", RequestsPerMinute: 10, TokensPerMinute: 250_000, RequestsPerDay: 250},
		},
		Routing: RoutingConfig{
			Primary:  "gemini-2.5-pro",
			Fallback: "gemini-2.5-flash",
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   DefaultBaseDelay,
			MaxDelay:    DefaultMaxDelay,
			Jitter:      DefaultJitter,
		},
		GracePeriod: DefaultGracePeriod,
	}
}

// LoadConfig reads and parses a YAML config file. Environment variables
// in the format ${VAR} are expanded before parsing, and unset retry
// fields fall back to the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("gengate: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("gengate: parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.Routing.Primary == "" && len(c.Endpoints) > 0 {
		c.Routing.Primary = c.Endpoints[0].Name
	}
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("gengate: config: at least one endpoint is required")
	}

	names := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("gengate: config: endpoint[%d]: name is required", i)
		}
		if names[ep.Name] {
			return fmt.Errorf("gengate: config: duplicate endpoint %q", ep.Name)
		}
		names[ep.Name] = true

		if ep.RequestsPerMinute < 0 || ep.TokensPerMinute < 0 || ep.RequestsPerDay < 0 {
			return fmt.Errorf("gengate: config: endpoint %q: limits must be non-negative", ep.Name)
		}
	}

	if c.Routing.Primary == "" {
		return fmt.Errorf("gengate: config: routing: primary endpoint is required")
	}
	if !names[c.Routing.Primary] {
		return fmt.Errorf("gengate: config: routing: unknown primary endpoint %q", c.Routing.Primary)
	}
	if c.Routing.Fallback != "" && !names[c.Routing.Fallback] {
		return fmt.Errorf("gengate: config: routing: unknown fallback endpoint %q", c.Routing.Fallback)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("gengate: config: retry: max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("gengate: config: retry: base_delay must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("gengate: config: retry: max_delay must not be below base_delay")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return fmt.Errorf("gengate: config: retry: jitter must be in [0, 1)")
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("gengate: config: grace_period must be positive")
	}

	return nil
}

// UnmarshalYAML accepts duration fields as Go duration strings
// ("500ms", "1m30s") as well as integer nanoseconds.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		Endpoints   []EndpointConfig `yaml:"endpoints"`
		Routing     RoutingConfig    `yaml:"routing"`
		Retry       rawRetry         `yaml:"retry"`
		GracePeriod duration         `yaml:"grace_period"`
	}
	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Endpoints = raw.Endpoints
	c.Routing = raw.Routing
	c.Retry = RetryConfig{
		MaxAttempts: raw.Retry.MaxAttempts,
		BaseDelay:   time.Duration(raw.Retry.BaseDelay),
		MaxDelay:    time.Duration(raw.Retry.MaxDelay),
		Jitter:      raw.Retry.Jitter,
	}
	c.GracePeriod = time.Duration(raw.GracePeriod)
	return nil
}

type rawRetry struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   duration `yaml:"base_delay"`
	MaxDelay    duration `yaml:"max_delay"`
	Jitter      float64  `yaml:"jitter"`
}

type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("gengate: config: invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}
