// Package registry tracks per-account health: the status state machine,
// failure/success bookkeeping, the rate-limit window and the periodic
// cooldown sweep. All mutation goes through the registry so the record
// invariants stay local.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/kestrelworks/aviary/internal/config"
	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/internal/core/ports"
	"github.com/kestrelworks/aviary/internal/logger"
)

// HealthRegistry owns the AccountHealth records, keyed by username.
// Records are lazily initialised on first touch; an account that vanishes
// from the store leaves a harmless orphan until the next reset.
type HealthRegistry struct {
	mu      sync.Mutex
	records map[string]*domain.AccountHealth
	cfg     config.HealthConfig
	logger  *logger.StyledLogger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	// now is swappable so tests can drive the clock
	now func() time.Time
}

func NewHealthRegistry(cfg config.HealthConfig, logger *logger.StyledLogger) *HealthRegistry {
	return &HealthRegistry{
		records: make(map[string]*domain.AccountHealth),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins the periodic sweep. Safe to call once per lifecycle.
func (r *HealthRegistry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.stopCh = make(chan struct{})
	r.running = true

	r.wg.Add(1)
	go r.sweepLoop()
}

// Stop halts the sweep loop and waits for it to exit.
func (r *HealthRegistry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *HealthRegistry) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep promotes aged-out cooldowns to probation and prunes rate-window
// timestamps. Runs on a ticker but is also safe to invoke directly.
func (r *HealthRegistry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, rec := range r.records {
		if rec.Status == domain.StatusCooldown && now.After(rec.CooldownUntil) {
			rec.Status = domain.StatusProbation
			rec.ConsecutiveFailures = 0
			r.logger.InfoAccountStatus("Cooldown expired,", rec.Username, rec.Status)
		}
		rec.RecentTimestamps = pruneWindow(rec.RecentTimestamps, now, r.cfg.RateWindow)
	}
}

func pruneWindow(timestamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	// Timestamps are appended in order; find the first still inside
	idx := sort.Search(len(timestamps), func(i int) bool {
		return timestamps[i].After(cutoff)
	})
	if idx == 0 {
		return timestamps
	}
	return append(timestamps[:0:0], timestamps[idx:]...)
}

// Init ensures a record exists for every listed account. New records
// start healthy with a perfect success rate.
func (r *HealthRegistry) Init(accounts []*domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range accounts {
		r.ensureLocked(account.Username)
	}
}

// Reset drops every record, clearing terminal LOCKED and DISABLED states.
// Called on an operator reload of the accounts file.
func (r *HealthRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*domain.AccountHealth)
}

func (r *HealthRegistry) ensureLocked(username string) *domain.AccountHealth {
	rec, ok := r.records[username]
	if !ok {
		rec = &domain.AccountHealth{
			Username:    username,
			Status:      domain.StatusHealthy,
			SuccessRate: 1.0,
		}
		r.records[username] = rec
	}
	return rec
}

// RecordSuccess notes a successful attempt. Three consecutive successes
// promote a probation account back to healthy.
func (r *HealthRegistry) RecordSuccess(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec := r.ensureLocked(username)

	rec.RequestCount++
	rec.LastUsed = now
	rec.ConsecutiveSuccesses++
	rec.ConsecutiveFailures = 0
	rec.RecentTimestamps = append(pruneWindow(rec.RecentTimestamps, now, r.cfg.RateWindow), now)
	rec.SuccessRate = rec.SuccessRate*0.9 + 0.1

	if rec.Status == domain.StatusProbation && rec.ConsecutiveSuccesses >= r.cfg.ProbationSuccesses {
		rec.Status = domain.StatusHealthy
		r.logger.InfoAccountStatus("Probation cleared,", rec.Username, rec.Status)
	}
}

// RecordFailure notes a failed attempt and applies the status transitions
// for the failure kind. Attempts count against the rate window either way.
func (r *HealthRegistry) RecordFailure(username string, kind domain.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec := r.ensureLocked(username)

	rec.RequestCount++
	rec.LastUsed = now
	rec.ConsecutiveFailures++
	rec.ConsecutiveSuccesses = 0
	rec.RecentTimestamps = append(pruneWindow(rec.RecentTimestamps, now, r.cfg.RateWindow), now)
	rec.SuccessRate = rec.SuccessRate * 0.9
	rec.LastErrorKind = kind
	rec.LastErrorAt = now

	if rec.Status.IsTerminal() {
		return
	}

	switch {
	case kind == domain.ErrorKindAccountLocked:
		rec.Status = domain.StatusLocked
		r.logger.InfoAccountStatus("Upstream lockout,", rec.Username, rec.Status)

	case kind == domain.ErrorKindRateLimit:
		rec.Status = domain.StatusCooldown
		rec.CooldownUntil = now.Add(r.cfg.CooldownWindow)
		r.logger.InfoAccountStatus("Rate limited,", rec.Username, rec.Status,
			"until", rec.CooldownUntil.Format(time.RFC3339))

	case rec.ConsecutiveFailures >= r.cfg.MaxConsecutiveFailures:
		rec.Status = domain.StatusCooldown
		rec.CooldownUntil = now.Add(r.cfg.CooldownWindow)
		r.logger.InfoAccountStatus("Too many consecutive failures,", rec.Username, rec.Status,
			"failures", rec.ConsecutiveFailures)
	}
}

// Select picks the best usable account, or nil when none qualify.
// Filter: not terminal, cooldown aged out, rate window below the cap.
// Order: healthy first, then fewest consecutive failures, then least
// recently used.
func (r *HealthRegistry) Select(accounts []*domain.Account) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	type candidate struct {
		account *domain.Account
		rec     *domain.AccountHealth
	}
	candidates := make([]candidate, 0, len(accounts))

	for _, account := range accounts {
		rec := r.ensureLocked(account.Username)
		if rec.Status.IsTerminal() {
			continue
		}
		if rec.Status == domain.StatusCooldown && now.Before(rec.CooldownUntil) {
			continue
		}
		if rec.WindowCount(now, r.cfg.RateWindow) >= r.cfg.MaxRequestsPerWindow {
			continue
		}
		candidates = append(candidates, candidate{account, rec})
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].rec, candidates[j].rec
		if (a.Status == domain.StatusHealthy) != (b.Status == domain.StatusHealthy) {
			return a.Status == domain.StatusHealthy
		}
		if a.ConsecutiveFailures != b.ConsecutiveFailures {
			return a.ConsecutiveFailures < b.ConsecutiveFailures
		}
		return a.LastUsed.Before(b.LastUsed)
	})

	return candidates[0].account
}

// Snapshot returns a copy of one account's record, and whether it exists.
func (r *HealthRegistry) Snapshot(username string) (domain.AccountHealth, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[username]
	if !ok {
		return domain.AccountHealth{}, false
	}
	copied := *rec
	copied.RecentTimestamps = append([]time.Time(nil), rec.RecentTimestamps...)
	return copied, true
}

// Overview summarises health for the stats document.
func (r *HealthRegistry) Overview(accounts []*domain.Account) (counts map[domain.AccountStatus]int, perAccount map[string]ports.AccountStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts = make(map[domain.AccountStatus]int)
	perAccount = make(map[string]ports.AccountStats, len(accounts))

	for _, account := range accounts {
		rec := r.ensureLocked(account.Username)
		counts[rec.Status]++
		perAccount[account.Username] = ports.AccountStats{
			Status:      rec.Status.String(),
			Requests:    rec.RequestCount,
			SuccessRate: rec.SuccessRate * 100,
		}
	}
	return counts, perAccount
}
