// Package ports defines the boundaries between the dispatch core and its
// collaborators. The upstream protocol itself is opaque to the core: the
// dispatcher only needs a client it can hand to an operation.
package ports

import (
	"context"

	"github.com/kestrelworks/aviary/internal/core/domain"
)

// UpstreamClient is an authenticated session against the upstream site,
// bound to at most one egress proxy for its lifetime.
type UpstreamClient interface {
	// SetCookies installs an opaque cookie set for the upstream domain.
	SetCookies(cookies []string)
	// Cookies returns the client's current cookie set.
	Cookies() []string
	// Login performs a credential login, including TOTP if a secret is set.
	Login(ctx context.Context, account *domain.Account) error
	// ResolveUserID resolves a public screen name to a user id. Doubles as
	// the session verification call in the authentication ladder.
	ResolveUserID(ctx context.Context, username string) (string, error)

	UserTweets(ctx context.Context, username string, count int) ([]domain.Tweet, error)
	UserTweetsAndReplies(ctx context.Context, username string, count int) ([]domain.Tweet, error)
	LatestTweet(ctx context.Context, username string) (*domain.Tweet, error)
	Search(ctx context.Context, query string, count int, mode domain.SearchMode) ([]domain.Tweet, error)
	Profile(ctx context.Context, username string) (*domain.Profile, error)
	Followers(ctx context.Context, username string, count int) ([]domain.Profile, error)
	Following(ctx context.Context, username string, count int) ([]domain.Profile, error)
	TweetByID(ctx context.Context, id string) (*domain.Tweet, error)
}

// ClientFactory produces a ready-to-use authenticated client for an
// account, egressing through the given proxy when one is supplied.
type ClientFactory interface {
	NewClient(ctx context.Context, account *domain.Account, proxy *domain.Proxy) (UpstreamClient, error)
}

// Operation is the caller-supplied thunk the dispatcher runs once it has
// bound an account and an authenticated client.
type Operation func(ctx context.Context, client UpstreamClient, account *domain.Account) (any, error)

// AccountSource yields the current account population.
type AccountSource interface {
	ListAccounts() []*domain.Account
}

// ProxySource yields a random proxy, or nil when none are loaded.
type ProxySource interface {
	PickRandom() *domain.Proxy
	Count() int
}

// CookieCache persists per-account cookie sets across restarts.
type CookieCache interface {
	LoadCookies(username string) []string
	SaveCookies(account *domain.Account, cookies []string) error
}

// AccountStats is the per-account slice of the stats document.
type AccountStats struct {
	Status      string  `json:"status"`
	Requests    int64   `json:"requests"`
	SuccessRate float64 `json:"success_rate_pct"`
}

// DispatcherStats is the stats document served by the API.
type DispatcherStats struct {
	Accounts struct {
		Total     int `json:"total"`
		Healthy   int `json:"healthy"`
		Probation int `json:"probation"`
		Cooldown  int `json:"cooldown"`
		Disabled  int `json:"disabled"`
		Locked    int `json:"locked"`
	} `json:"accounts"`
	Proxies struct {
		Total int `json:"total"`
	} `json:"proxies"`
	Queue struct {
		Depth   int `json:"depth"`
		MaxSize int `json:"max_size"`
	} `json:"queue"`
	Concurrency struct {
		Active int `json:"active"`
		Max    int `json:"max"`
	} `json:"concurrency"`
	PerAccount map[string]AccountStats `json:"per_account"`
}
