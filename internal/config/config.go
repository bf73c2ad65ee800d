package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort = 19860
	DefaultHost = "localhost"
)

// envBindings maps the flat operational environment variables to their
// config keys. These are the knobs operators actually reach for, so they
// stay un-prefixed.
var envBindings = map[string]string{
	"dispatch.max_concurrency": "MAX_CONCURRENCY",
	"dispatch.max_queue_size":  "MAX_QUEUE_SIZE",
	"timeouts.login":           "TIMEOUT_LOGIN",
	"timeouts.search":          "TIMEOUT_SEARCH",
	"timeouts.profile":         "TIMEOUT_PROFILE",
	"timeouts.tweet":           "TIMEOUT_TWEET",
	"timeouts.default":         "TIMEOUT_DEFAULT",
	"files.accounts_path":      "ACCOUNTS_TXT_PATH",
	"files.proxies_path":       "PROXIES_TXT_PATH",
	"files.cookies_path":       "COOKIES_JSON_PATH",
}

// Timeout env vars are plain millisecond integers, not Go durations.
var millisecondKeys = map[string]bool{
	"timeouts.login":   true,
	"timeouts.search":  true,
	"timeouts.profile": true,
	"timeouts.tweet":   true,
	"timeouts.default": true,
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxConcurrency: 10,
			MaxQueueSize:   1000,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RetryJitter:    500 * time.Millisecond,
		},
		Health: HealthConfig{
			CooldownWindow:         2 * time.Minute,
			MaxConsecutiveFailures: 10,
			RateWindow:             15 * time.Minute,
			MaxRequestsPerWindow:   50,
			SweepInterval:          2 * time.Minute,
			ProbationSuccesses:     3,
		},
		Timeouts: TimeoutConfig{
			Login:   45 * time.Second,
			Search:  60 * time.Second,
			Profile: 30 * time.Second,
			Tweet:   35 * time.Second,
			Default: 30 * time.Second,
			Verify:  15 * time.Second,
		},
		Files: FilesConfig{
			AccountsPath: "twitters.txt",
			ProxiesPath:  "proxies.txt",
			CookiesPath:  "cookies.json",
			Watch:        true,
		},
		Upstream: UpstreamConfig{
			BaseURL:           "https://api.x.com",
			CookieDomain:      ".x.com",
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64; rv:141.0) Gecko/20100101 Firefox/141.0",
			BearerToken:       "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA",
			RequestsPerSecond: 1.0,
			Burst:             3,
		},
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("AVIARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("AVIARY_CONFIG_FILE"); configFile != "" {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	// The millisecond env vars need explicit conversion before Unmarshal
	// would misread "45000" as 45000ns.
	for key := range millisecondKeys {
		if v.IsSet(key) {
			if ms := v.GetInt64(key); ms > 0 {
				v.Set(key, time.Duration(ms)*time.Millisecond)
			}
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return config, nil
}
