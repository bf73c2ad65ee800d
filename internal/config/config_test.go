package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dispatch.MaxConcurrency != 10 {
		t.Errorf("MaxConcurrency = %d, want 10", cfg.Dispatch.MaxConcurrency)
	}
	if cfg.Dispatch.MaxQueueSize != 1000 {
		t.Errorf("MaxQueueSize = %d, want 1000", cfg.Dispatch.MaxQueueSize)
	}
	if cfg.Dispatch.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Dispatch.MaxRetries)
	}
	if cfg.Timeouts.Login != 45*time.Second {
		t.Errorf("Login timeout = %v, want 45s", cfg.Timeouts.Login)
	}
	if cfg.Timeouts.Search != 60*time.Second {
		t.Errorf("Search timeout = %v, want 60s", cfg.Timeouts.Search)
	}
	if cfg.Timeouts.Tweet != 35*time.Second {
		t.Errorf("Tweet timeout = %v, want 35s", cfg.Timeouts.Tweet)
	}
	if cfg.Health.RateWindow != 15*time.Minute {
		t.Errorf("RateWindow = %v, want 15m", cfg.Health.RateWindow)
	}
	if cfg.Files.AccountsPath != "twitters.txt" {
		t.Errorf("AccountsPath = %q", cfg.Files.AccountsPath)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAX_CONCURRENCY", "3")
	t.Setenv("MAX_QUEUE_SIZE", "25")
	t.Setenv("ACCOUNTS_TXT_PATH", "/data/accounts.txt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Dispatch.MaxConcurrency != 3 {
		t.Errorf("MaxConcurrency = %d, want 3", cfg.Dispatch.MaxConcurrency)
	}
	if cfg.Dispatch.MaxQueueSize != 25 {
		t.Errorf("MaxQueueSize = %d, want 25", cfg.Dispatch.MaxQueueSize)
	}
	if cfg.Files.AccountsPath != "/data/accounts.txt" {
		t.Errorf("AccountsPath = %q", cfg.Files.AccountsPath)
	}
}

func TestLoadTimeoutEnvVarsAreMilliseconds(t *testing.T) {
	t.Setenv("TIMEOUT_LOGIN", "50000")
	t.Setenv("TIMEOUT_SEARCH", "90000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Timeouts.Login != 50*time.Second {
		t.Errorf("Login = %v, want 50s", cfg.Timeouts.Login)
	}
	if cfg.Timeouts.Search != 90*time.Second {
		t.Errorf("Search = %v, want 90s", cfg.Timeouts.Search)
	}
	// Untouched classes keep their defaults
	if cfg.Timeouts.Tweet != 35*time.Second {
		t.Errorf("Tweet = %v, want 35s", cfg.Timeouts.Tweet)
	}
}

func TestForOperation(t *testing.T) {
	timeouts := TimeoutConfig{
		Login:   1 * time.Second,
		Search:  2 * time.Second,
		Profile: 3 * time.Second,
		Tweet:   4 * time.Second,
		Default: 5 * time.Second,
	}

	cases := []struct {
		op   string
		want time.Duration
	}{
		{"login(alice)", 1 * time.Second},
		{"search(golang)", 2 * time.Second},
		{"getProfile(alice)", 3 * time.Second},
		{"getFollowers(alice)", 3 * time.Second},
		{"getFollowing(alice)", 3 * time.Second},
		{"getTweets(alice)", 4 * time.Second},
		{"getLatestTweet(alice)", 4 * time.Second},
		{"getReplies(alice)", 4 * time.Second},
		{"somethingElse", 5 * time.Second},
	}
	for _, tc := range cases {
		if got := timeouts.ForOperation(tc.op); got != tc.want {
			t.Errorf("ForOperation(%q) = %v, want %v", tc.op, got, tc.want)
		}
	}
}
