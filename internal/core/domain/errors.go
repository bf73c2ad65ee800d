package domain

import (
	"errors"
	"strings"
)

var (
	ErrQueueFull        = errors.New("Request queue is full")
	ErrNoUsableAccounts = errors.New("No usable accounts available")
)

type ErrorKind string

const (
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindNetwork       ErrorKind = "network"
	ErrorKindRateLimit     ErrorKind = "rate_limit"
	ErrorKindAuth          ErrorKind = "auth"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindAccountLocked ErrorKind = "account_locked"
	ErrorKindUnknown       ErrorKind = "unknown"
)

// MaxUserVisibleErrorLen caps messages surfaced to callers so verbose
// upstream stack traces never leak through the API.
const MaxUserVisibleErrorLen = 300

type classifyRule struct {
	kind ErrorKind
	any  []string
}

// Ordered rules; the first rule with a matching substring wins. The AUTH
// rule additionally matches "status" together with "403".
var classifyRules = []classifyRule{
	{ErrorKindTimeout, []string{"timeout", "timed out"}},
	{ErrorKindNetwork, []string{"network", "fetch failed", "connection", "socket", "econnreset", "enotfound"}},
	{ErrorKindRateLimit, []string{"rate limit", "too many requests", "429"}},
	{ErrorKindAuth, []string{"unauthorized", "401", "authentication failed"}},
	{ErrorKindNotFound, []string{"not found", "404"}},
	{ErrorKindAccountLocked, []string{"locked", "suspended", "verify your identity"}},
}

// Classify maps an opaque error message to an error kind by
// case-insensitive substring matching.
func Classify(message string) ErrorKind {
	m := strings.ToLower(message)
	for _, rule := range classifyRules {
		for _, needle := range rule.any {
			if strings.Contains(m, needle) {
				return rule.kind
			}
		}
		if rule.kind == ErrorKindAuth &&
			strings.Contains(m, "status") && strings.Contains(m, "403") {
			return ErrorKindAuth
		}
	}
	return ErrorKindUnknown
}

// ClassifyError is Classify over err.Error(); nil maps to UNKNOWN.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	return Classify(err.Error())
}

// IsTransient reports whether a failure of this kind is worth retrying,
// possibly on a different account and proxy.
func (k ErrorKind) IsTransient() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindNetwork, ErrorKindUnknown:
		return true
	default:
		return false
	}
}

// ExternalStatus maps an error kind to the HTTP status the API surfaces.
func (k ErrorKind) ExternalStatus() int {
	switch k {
	case ErrorKindRateLimit:
		return 429
	case ErrorKindAuth:
		return 401
	case ErrorKindNotFound:
		return 404
	case ErrorKindAccountLocked:
		return 503
	case ErrorKindTimeout, ErrorKindNetwork:
		return 502
	default:
		return 500
	}
}

func (k ErrorKind) String() string {
	return string(k)
}

// TruncateMessage bounds a user-visible error message.
func TruncateMessage(message string) string {
	if len(message) <= MaxUserVisibleErrorLen {
		return message
	}
	return message[:MaxUserVisibleErrorLen]
}
