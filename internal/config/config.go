package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"` // console or json

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret    string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer    string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience  string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL       time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	RequireToken bool          `mapstructure:"require_token" yaml:"require_token"`

	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
	MaxMessageBytes  int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxContentLength int      `mapstructure:"max_content_length" yaml:"max_content_length"`
	EventBuffer      int      `mapstructure:"event_buffer" yaml:"event_buffer"`
	JobQueue         int      `mapstructure:"job_queue" yaml:"job_queue"`

	// RateLimitPerMinute caps inbound envelopes per connection; 0 disables it.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	// Optional collaborators; empty disables them.
	RedisAddr         string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisTTL          time.Duration `mapstructure:"redis_ttl" yaml:"redis_ttl"`
	NATSURL           string        `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSubjectPrefix string        `mapstructure:"nats_subject_prefix" yaml:"nats_subject_prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "chatlink.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "chatlink",
		JWTAudience:       "chatlink",
		JWTTTL:            24 * time.Hour,
		MaxMessageBytes:   1 << 20,
		MaxContentLength:  2000,
		EventBuffer:       64,
		JobQueue:          256,
		RedisTTL:          10 * time.Minute,
		NATSSubjectPrefix: "chatlink",

		RateLimitPerMinute: 120,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
}
