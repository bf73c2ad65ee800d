package domain

import "time"

// AccountStatus is the health state of one account.
type AccountStatus string

const (
	StatusHealthy   AccountStatus = "healthy"
	StatusProbation AccountStatus = "probation"
	StatusCooldown  AccountStatus = "cooldown"
	StatusDisabled  AccountStatus = "disabled"
	StatusLocked    AccountStatus = "locked"
)

func (s AccountStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status excludes the account from
// selection until the next operator reload.
func (s AccountStatus) IsTerminal() bool {
	return s == StatusDisabled || s == StatusLocked
}

// AccountHealth is the mutable per-account record owned by the health
// registry. RecentTimestamps holds attempt times inside the sliding rate
// window, oldest first.
type AccountHealth struct {
	Username             string
	Status               AccountStatus
	LastUsed             time.Time
	RequestCount         int64
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	CooldownUntil        time.Time
	LastErrorKind        ErrorKind
	LastErrorAt          time.Time
	SuccessRate          float64
	RecentTimestamps     []time.Time
}

// WindowCount counts attempts within [now-window, now].
func (h *AccountHealth) WindowCount(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	count := 0
	for i := len(h.RecentTimestamps) - 1; i >= 0; i-- {
		if !h.RecentTimestamps[i].After(cutoff) {
			break
		}
		count++
	}
	return count
}

// CooldownExpired reports whether a cooled-down account is eligible again.
func (h *AccountHealth) CooldownExpired(now time.Time) bool {
	return h.Status == StatusCooldown && !now.Before(h.CooldownUntil)
}
