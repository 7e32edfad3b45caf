package config

import "time"

// Quota is a note allowance tier.
type Quota struct {
	Allowance int `mapstructure:"allowance" yaml:"allowance"`
	Max       int `mapstructure:"max" yaml:"max"`
	HistLen   int `mapstructure:"hist_len" yaml:"hist_len"`
}

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	SendBuffer        int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	// ProfileBackend is one of sqlite, redis or memory.
	ProfileBackend string `mapstructure:"profile_backend" yaml:"profile_backend"`
	DatabasePath   string `mapstructure:"database_path" yaml:"database_path"`
	RedisAddr      string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB        int    `mapstructure:"redis_db" yaml:"redis_db"`

	// TokenSecret signs identity tokens. Empty means a random per-process secret.
	TokenSecret string        `mapstructure:"token_secret" yaml:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	ChatHistory     int   `mapstructure:"chat_history" yaml:"chat_history"`
	QuotaNormal     Quota `mapstructure:"quota_normal" yaml:"quota_normal"`
	QuotaRestricted Quota `mapstructure:"quota_restricted" yaml:"quota_restricted"`
}

// Profile backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		HeartbeatInterval: 10 * time.Second,
		SendBuffer:        256,
		MaxMessageBytes:   64 << 10,
		ProfileBackend:    BackendSQLite,
		DatabasePath:      "pianochat.db",
		RedisAddr:         "localhost:6379",
		TokenTTL:          30 * 24 * time.Hour,
		ChatHistory:       32,
		QuotaNormal:       Quota{Allowance: 200, Max: 600, HistLen: 0},
		QuotaRestricted:   Quota{Allowance: 8000, Max: 24000, HistLen: 3},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
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
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.HeartbeatInterval != 0 {
		c.HeartbeatInterval = other.HeartbeatInterval
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.ProfileBackend != "" {
		c.ProfileBackend = other.ProfileBackend
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
	if other.RedisDB != 0 {
		c.RedisDB = other.RedisDB
	}
	if other.TokenSecret != "" {
		c.TokenSecret = other.TokenSecret
	}
	if other.TokenTTL != 0 {
		c.TokenTTL = other.TokenTTL
	}
	if other.ChatHistory != 0 {
		c.ChatHistory = other.ChatHistory
	}
}
