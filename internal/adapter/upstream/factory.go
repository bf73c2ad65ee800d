package upstream

import (
	"context"
	"fmt"

	"github.com/kestrelworks/aviary/internal/config"
	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/internal/core/ports"
	"github.com/kestrelworks/aviary/internal/logger"
)

// verifyScreenName is a public account that always resolves; a session
// that can resolve it is usable.
const verifyScreenName = "X"

// Factory builds authenticated clients via the authentication ladder:
// cached cookies, then the account's pre-obtained session tokens, then a
// full credential login. Each rung is verified with one trivial upstream
// call before it counts, and a fresh cookie set is persisted on success.
type Factory struct {
	cfg      config.UpstreamConfig
	timeouts config.TimeoutConfig
	cookies  ports.CookieCache
	logger   *logger.StyledLogger
}

func NewFactory(cfg config.UpstreamConfig, timeouts config.TimeoutConfig, cookies ports.CookieCache, logger *logger.StyledLogger) *Factory {
	return &Factory{
		cfg:      cfg,
		timeouts: timeouts,
		cookies:  cookies,
		logger:   logger,
	}
}

// NewClient runs the ladder for one account. The rungs are sequential:
// each short-circuits on success and the last one is expensive.
func (f *Factory) NewClient(ctx context.Context, account *domain.Account, proxy *domain.Proxy) (ports.UpstreamClient, error) {
	var lastErr error

	if cached := f.cookies.LoadCookies(account.Username); len(cached) > 0 {
		client, err := f.tryCookies(ctx, account, proxy, cached)
		if err == nil {
			return client, nil
		}
		lastErr = err
		f.logger.Debug("Cached cookies rejected", "account", account.Username, "error", err)
	}

	if account.HasSessionTokens() {
		client, err := f.tryCookies(ctx, account, proxy, sessionCookies(account, f.cfg.CookieDomain))
		if err == nil {
			return client, nil
		}
		lastErr = err
		f.logger.Debug("Session tokens rejected", "account", account.Username, "error", err)
	}

	client, err := f.tryLogin(ctx, account, proxy)
	if err == nil {
		return client, nil
	}
	lastErr = err
	return nil, fmt.Errorf("all authentication methods exhausted for %s: %w", account.Username, lastErr)
}

func (f *Factory) tryCookies(ctx context.Context, account *domain.Account, proxy *domain.Proxy, cookies []string) (*Client, error) {
	client, err := NewClient(f.cfg, proxy, f.logger)
	if err != nil {
		return nil, err
	}
	client.SetCookies(cookies)

	if err := f.verify(ctx, client); err != nil {
		return nil, err
	}
	f.persist(account, client)
	return client, nil
}

func (f *Factory) tryLogin(ctx context.Context, account *domain.Account, proxy *domain.Proxy) (*Client, error) {
	client, err := NewClient(f.cfg, proxy, f.logger)
	if err != nil {
		return nil, err
	}

	loginCtx, cancel := context.WithTimeout(ctx, f.timeouts.Login)
	defer cancel()
	if err := client.Login(loginCtx, account); err != nil {
		return nil, err
	}

	if err := f.verify(ctx, client); err != nil {
		return nil, err
	}
	f.persist(account, client)
	return client, nil
}

// verify issues the trivial resolution call under the verification
// deadline. A non-empty id means the session is usable.
func (f *Factory) verify(ctx context.Context, client *Client) error {
	vctx, cancel := context.WithTimeout(ctx, f.timeouts.Verify)
	defer cancel()

	id, err := client.ResolveUserID(vctx, verifyScreenName)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("authentication failed: session verification returned no user")
	}
	return nil
}

// persist writes the session's cookies through to the cache. Failure to
// persist is not failure to authenticate.
func (f *Factory) persist(account *domain.Account, client *Client) {
	if err := f.cookies.SaveCookies(account, client.Cookies()); err != nil {
		f.logger.WarnWithAccount("Failed to persist cookies for", account.Username, "error", err)
	}
}

// sessionCookies renders the account's ct0 and auth_token as cookies
// scoped to the upstream domain.
func sessionCookies(account *domain.Account, cookieDomain string) []string {
	return []string{
		fmt.Sprintf("ct0=%s; Domain=%s; Path=/; Secure", account.CT0, cookieDomain),
		fmt.Sprintf("auth_token=%s; Domain=%s; Path=/; Secure; HttpOnly", account.AuthToken, cookieDomain),
	}
}
