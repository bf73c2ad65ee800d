// Package domain holds the core value types shared by every adapter:
// accounts, proxies, health records, priorities and error kinds.
package domain

// Account is one set of upstream credentials owned by this service.
// CT0 and AuthToken are optional pre-obtained session tokens; when both
// are present a credential login can usually be avoided.
type Account struct {
	Username        string
	Password        string
	Email           string
	EmailPassword   string
	TwoFactorSecret string
	CT0             string
	AuthToken       string
}

// HasSessionTokens reports whether the account carries both pre-obtained
// session tokens.
func (a *Account) HasSessionTokens() bool {
	return a.CT0 != "" && a.AuthToken != ""
}

// CookieEntry is one record of the cookie cache file.
type CookieEntry struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Email    string   `json:"email"`
	TwoFA    string   `json:"twofa"`
	Cookies  []string `json:"cookies"`
}

// Proxy is one egress proxy. URL is the normalised http form, with
// credentials inline when the source record carried them.
type Proxy struct {
	URL  string
	Host string
	Port int
}
