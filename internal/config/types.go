package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Dispatch DispatchConfig `yaml:"dispatch" mapstructure:"dispatch"`
	Health   HealthConfig   `yaml:"health" mapstructure:"health"`
	Timeouts TimeoutConfig  `yaml:"timeouts" mapstructure:"timeouts"`
	Files    FilesConfig    `yaml:"files" mapstructure:"files"`
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DispatchConfig tunes the request dispatcher
type DispatchConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxQueueSize   int           `yaml:"max_queue_size" mapstructure:"max_queue_size"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
	RetryJitter    time.Duration `yaml:"retry_jitter" mapstructure:"retry_jitter"`
}

// HealthConfig tunes the per-account health state machine
type HealthConfig struct {
	CooldownWindow         time.Duration `yaml:"cooldown_window" mapstructure:"cooldown_window"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	RateWindow             time.Duration `yaml:"rate_window" mapstructure:"rate_window"`
	MaxRequestsPerWindow   int           `yaml:"max_requests_per_window" mapstructure:"max_requests_per_window"`
	SweepInterval          time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	ProbationSuccesses     int           `yaml:"probation_successes" mapstructure:"probation_successes"`
}

// TimeoutConfig holds the per-operation-class deadlines
type TimeoutConfig struct {
	Login   time.Duration `yaml:"login" mapstructure:"login"`
	Search  time.Duration `yaml:"search" mapstructure:"search"`
	Profile time.Duration `yaml:"profile" mapstructure:"profile"`
	Tweet   time.Duration `yaml:"tweet" mapstructure:"tweet"`
	Default time.Duration `yaml:"default" mapstructure:"default"`
	Verify  time.Duration `yaml:"verify" mapstructure:"verify"`
}

// ForOperation resolves the deadline class from the operation name.
func (t *TimeoutConfig) ForOperation(opName string) time.Duration {
	switch {
	case strings.HasPrefix(opName, "login"):
		return t.Login
	case strings.HasPrefix(opName, "search"):
		return t.Search
	case strings.HasPrefix(opName, "getProfile"),
		strings.HasPrefix(opName, "getFollowers"),
		strings.HasPrefix(opName, "getFollowing"):
		return t.Profile
	case strings.HasPrefix(opName, "getTweet"),
		strings.HasPrefix(opName, "getLatest"),
		strings.HasPrefix(opName, "getReplies"):
		return t.Tweet
	default:
		return t.Default
	}
}

// FilesConfig locates the flat-file inputs and the cookie cache
type FilesConfig struct {
	AccountsPath string `yaml:"accounts_path" mapstructure:"accounts_path"`
	ProxiesPath  string `yaml:"proxies_path" mapstructure:"proxies_path"`
	CookiesPath  string `yaml:"cookies_path" mapstructure:"cookies_path"`
	Watch        bool   `yaml:"watch" mapstructure:"watch"`
}

// UpstreamConfig tunes the upstream HTTP client
type UpstreamConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	CookieDomain      string  `yaml:"cookie_domain" mapstructure:"cookie_domain"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	BearerToken       string  `yaml:"bearer_token" mapstructure:"bearer_token"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}
