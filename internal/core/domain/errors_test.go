package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		message string
		want    ErrorKind
	}{
		{"request timed out", ErrorKindTimeout},
		{"operation timeout while reading", ErrorKindTimeout},
		{"ECONNRESET", ErrorKindNetwork},
		{"fetch failed", ErrorKindNetwork},
		{"socket hang up", ErrorKindNetwork},
		{"429 Too Many Requests", ErrorKindRateLimit},
		{"rate limit exceeded", ErrorKindRateLimit},
		{"401 Unauthorized", ErrorKindAuth},
		{"authentication failed: login denied", ErrorKindAuth},
		{"upstream rejected request with status 403: forbidden", ErrorKindAuth},
		{"User not found", ErrorKindNotFound},
		{"resource returned 404", ErrorKindNotFound},
		{"Account locked", ErrorKindAccountLocked},
		{"account suspended", ErrorKindAccountLocked},
		{"please verify your identity", ErrorKindAccountLocked},
		{"something weird", ErrorKindUnknown},
		{"", ErrorKindUnknown},
	}

	for _, tc := range cases {
		if got := Classify(tc.message); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	// A timeout marker wins even when a later rule would also match
	if got := Classify("timed out waiting for connection"); got != ErrorKindTimeout {
		t.Errorf("expected timeout to win over network, got %s", got)
	}
	if got := Classify("connection refused (429)"); got != ErrorKindNetwork {
		t.Errorf("expected network to win over rate limit, got %s", got)
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(nil); got != ErrorKindUnknown {
		t.Errorf("ClassifyError(nil) = %s, want unknown", got)
	}
	if got := ClassifyError(errors.New("429 Too Many Requests")); got != ErrorKindRateLimit {
		t.Errorf("ClassifyError = %s, want rate_limit", got)
	}
}

func TestIsTransient(t *testing.T) {
	transient := []ErrorKind{ErrorKindTimeout, ErrorKindNetwork, ErrorKindUnknown}
	for _, kind := range transient {
		if !kind.IsTransient() {
			t.Errorf("%s should be transient", kind)
		}
	}

	terminal := []ErrorKind{ErrorKindRateLimit, ErrorKindAuth, ErrorKindNotFound, ErrorKindAccountLocked}
	for _, kind := range terminal {
		if kind.IsTransient() {
			t.Errorf("%s should not be transient", kind)
		}
	}
}

func TestExternalStatus(t *testing.T) {
	cases := map[ErrorKind]int{
		ErrorKindRateLimit:     429,
		ErrorKindAuth:          401,
		ErrorKindNotFound:      404,
		ErrorKindAccountLocked: 503,
		ErrorKindTimeout:       502,
		ErrorKindNetwork:       502,
		ErrorKindUnknown:       500,
	}
	for kind, want := range cases {
		if got := kind.ExternalStatus(); got != want {
			t.Errorf("ExternalStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestTruncateMessage(t *testing.T) {
	short := "brief failure"
	if got := TruncateMessage(short); got != short {
		t.Errorf("short message should pass through unchanged, got %q", got)
	}

	long := strings.Repeat("x", MaxUserVisibleErrorLen+100)
	got := TruncateMessage(long)
	if len(got) != MaxUserVisibleErrorLen {
		t.Errorf("expected truncation to %d characters, got %d", MaxUserVisibleErrorLen, len(got))
	}
}
