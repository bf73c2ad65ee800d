// Package upstream implements the authenticated client against the
// upstream site's private GraphQL API, and the factory that produces one
// per account via the authentication ladder.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kestrelworks/aviary/internal/config"
	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/internal/logger"
)

// GraphQL operation ids change when the upstream redeploys; these are the
// current public web-client values.
const (
	opUserByScreenName  = "ck5KkZ8t5cOmoLssopN99Q/UserByScreenName"
	opUserTweets        = "E3opETHurmVJflFsUBVuUQ/UserTweets"
	opUserTweetsReplies = "bt4TKuFz4T7Ckk-VvQVSow/UserTweetsAndReplies"
	opSearchTimeline    = "gkjsKepM6gl_HmFWoWKfgg/SearchTimeline"
	opFollowers         = "rRXFSG5vR6drKr5M37YOTw/Followers"
	opFollowing         = "iSicc7LrzWGBgDPL0tM_TQ/Following"
	opTweetDetail       = "xOhkmRac04YFZmOzU9PJHg/TweetDetail"
)

const maxErrorBodySnippet = 200

// Client is one authenticated session, bound to at most one egress proxy
// for its lifetime. Requests are paced by a token-bucket limiter so a
// single hot account cannot hammer the upstream.
type Client struct {
	http    *http.Client
	jar     *cookiejar.Jar
	limiter *rate.Limiter
	cfg     config.UpstreamConfig
	baseURL *url.URL
	logger  *logger.StyledLogger

	// guestToken is only set for the duration of a credential login flow
	guestToken string
}

// NewClient builds an unauthenticated client. A nil proxy means direct
// egress.
func NewClient(cfg config.UpstreamConfig, proxy *domain.Proxy, logger *logger.StyledLogger) (*Client, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base url %q: %w", cfg.BaseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxy != nil {
		proxyURL, err := url.Parse(proxy.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", proxy.URL, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
		},
		jar:     jar,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:     cfg,
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

// SetCookies installs an opaque cookie set for the upstream domain.
// Entries are Set-Cookie strings; bare name=value pairs are accepted too.
func (c *Client) SetCookies(cookies []string) {
	parsed := make([]*http.Cookie, 0, len(cookies))
	for _, raw := range cookies {
		cookie, err := http.ParseSetCookie(raw)
		if err != nil {
			continue
		}
		if cookie.Domain == "" {
			cookie.Domain = c.cfg.CookieDomain
		}
		if cookie.Path == "" {
			cookie.Path = "/"
		}
		parsed = append(parsed, cookie)
	}
	c.jar.SetCookies(c.baseURL, parsed)
}

// Cookies returns the session's cookie set in Set-Cookie form, suitable
// for the cache file.
func (c *Client) Cookies() []string {
	cookies := c.jar.Cookies(c.baseURL)
	out := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		entry := fmt.Sprintf("%s=%s; Domain=%s; Path=/; Secure", cookie.Name, cookie.Value, c.cfg.CookieDomain)
		if cookie.Name == "auth_token" {
			entry += "; HttpOnly"
		}
		out = append(out, entry)
	}
	return out
}

func (c *Client) cookieValue(name string) string {
	for _, cookie := range c.jar.Cookies(c.baseURL) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

// graphql issues one GraphQL GET and decodes the body into out.
func (c *Client) graphql(ctx context.Context, operation string, variables map[string]any, out any) error {
	vars, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}

	endpoint := *c.baseURL
	endpoint.Path = "/graphql/" + operation

	q := endpoint.Query()
	q.Set("variables", string(vars))
	q.Set("features", timelineFeatures)
	endpoint.RawQuery = q.Encode()

	body, err := c.do(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return nil
}

// do issues one paced, authenticated request and maps non-200 statuses to
// errors the classifier recognises.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return payload, nil
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited: 429 Too Many Requests")
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("authentication failed: 401 %s", bodySnippet(payload))
	case http.StatusForbidden:
		snippet := bodySnippet(payload)
		lower := strings.ToLower(snippet)
		if strings.Contains(lower, "locked") || strings.Contains(lower, "suspended") {
			return nil, fmt.Errorf("account locked or suspended: %s", snippet)
		}
		return nil, fmt.Errorf("upstream rejected request with status 403: %s", snippet)
	case http.StatusNotFound:
		return nil, fmt.Errorf("resource not found: %s", bodySnippet(payload))
	default:
		return nil, fmt.Errorf("upstream request failed with status %d: %s", resp.StatusCode, bodySnippet(payload))
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://"+strings.TrimPrefix(c.cfg.CookieDomain, "."))
	req.Header.Set("X-Twitter-Active-User", "yes")
	req.Header.Set("X-Twitter-Client-Language", "en")

	if ct0 := c.cookieValue("ct0"); ct0 != "" {
		req.Header.Set("X-Csrf-Token", ct0)
	}
	if c.cookieValue("auth_token") != "" {
		req.Header.Set("X-Twitter-Auth-Type", "OAuth2Session")
	} else if c.guestToken != "" {
		req.Header.Set("X-Guest-Token", c.guestToken)
	}
}

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodySnippet {
		s = s[:maxErrorBodySnippet]
	}
	return s
}

// ResolveUserID resolves a screen name to its user id. This doubles as
// the session verification call: an authenticated session resolves any
// public account.
func (c *Client) ResolveUserID(ctx context.Context, username string) (string, error) {
	result, err := c.userByScreenName(ctx, username)
	if err != nil {
		return "", err
	}
	return result.RestID, nil
}

// Profile fetches a public profile.
func (c *Client) Profile(ctx context.Context, username string) (*domain.Profile, error) {
	result, err := c.userByScreenName(ctx, username)
	if err != nil {
		return nil, err
	}
	profile := result.toProfile()
	return &profile, nil
}

func (c *Client) userByScreenName(ctx context.Context, username string) (*userResult, error) {
	username = strings.TrimPrefix(username, "@")

	var resp struct {
		Data struct {
			User struct {
				Result *userResult `json:"result"`
			} `json:"user"`
		} `json:"data"`
	}
	err := c.graphql(ctx, opUserByScreenName, map[string]any{
		"screen_name": username,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data.User.Result == nil || resp.Data.User.Result.RestID == "" {
		return nil, fmt.Errorf("user %s not found", username)
	}
	return resp.Data.User.Result, nil
}
