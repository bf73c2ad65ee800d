package registry

import (
	"math"
	"testing"
	"time"

	"github.com/kestrelworks/aviary/internal/config"
	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/internal/logger"
)

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{
		CooldownWindow:         2 * time.Minute,
		MaxConsecutiveFailures: 10,
		RateWindow:             15 * time.Minute,
		MaxRequestsPerWindow:   50,
		SweepInterval:          2 * time.Minute,
		ProbationSuccesses:     3,
	}
}

func testLogger(t *testing.T) *logger.StyledLogger {
	t.Helper()
	_, styled, cleanup, err := logger.NewWithTheme(&logger.Config{Level: "error", FileOutput: false})
	if err != nil {
		t.Fatalf("failed to initialise test logger: %v", err)
	}
	t.Cleanup(cleanup)
	return styled
}

func newTestRegistry(t *testing.T) (*HealthRegistry, *time.Time) {
	t.Helper()
	reg := NewHealthRegistry(testHealthConfig(), testLogger(t))

	now := time.Now()
	reg.now = func() time.Time { return now }
	return reg, &now
}

func accounts(names ...string) []*domain.Account {
	out := make([]*domain.Account, len(names))
	for i, name := range names {
		out[i] = &domain.Account{Username: name}
	}
	return out
}

func TestNewRecordStartsHealthy(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.Init(accounts("alice"))

	rec, ok := reg.Snapshot("alice")
	if !ok {
		t.Fatal("expected a record after Init")
	}
	if rec.Status != domain.StatusHealthy {
		t.Errorf("status = %s, want healthy", rec.Status)
	}
	if rec.SuccessRate != 1.0 {
		t.Errorf("successRate = %f, want 1.0", rec.SuccessRate)
	}
}

func TestCountersAreExclusive(t *testing.T) {
	reg, _ := newTestRegistry(t)

	outcomes := []bool{true, true, false, true, false, false, true}
	for _, success := range outcomes {
		if success {
			reg.RecordSuccess("alice")
		} else {
			reg.RecordFailure("alice", domain.ErrorKindTimeout)
		}

		rec, _ := reg.Snapshot("alice")
		if rec.ConsecutiveSuccesses != 0 && rec.ConsecutiveFailures != 0 {
			t.Fatalf("both counters non-zero: successes=%d failures=%d",
				rec.ConsecutiveSuccesses, rec.ConsecutiveFailures)
		}
	}

	rec, _ := reg.Snapshot("alice")
	if rec.RequestCount != int64(len(outcomes)) {
		t.Errorf("requestCount = %d, want %d", rec.RequestCount, len(outcomes))
	}
}

func TestSuccessRateEMA(t *testing.T) {
	reg, _ := newTestRegistry(t)

	reg.RecordFailure("alice", domain.ErrorKindTimeout)
	rec, _ := reg.Snapshot("alice")
	if math.Abs(rec.SuccessRate-0.9) > 1e-9 {
		t.Errorf("after one failure successRate = %f, want 0.9", rec.SuccessRate)
	}

	reg.RecordSuccess("alice")
	rec, _ = reg.Snapshot("alice")
	if math.Abs(rec.SuccessRate-0.91) > 1e-9 {
		t.Errorf("after failure then success successRate = %f, want 0.91", rec.SuccessRate)
	}
}

func TestRateLimitCoolsDownAndBlocksSelection(t *testing.T) {
	reg, now := newTestRegistry(t)
	pool := accounts("alice")

	reg.RecordFailure("alice", domain.ErrorKindRateLimit)

	rec, _ := reg.Snapshot("alice")
	if rec.Status != domain.StatusCooldown {
		t.Fatalf("status = %s, want cooldown", rec.Status)
	}
	if !rec.CooldownUntil.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("cooldownUntil = %v", rec.CooldownUntil)
	}

	if got := reg.Select(pool); got != nil {
		t.Errorf("cooled-down account selected: %v", got.Username)
	}

	// Once the deadline passes the account is eligible again
	*now = now.Add(3 * time.Minute)
	if got := reg.Select(pool); got == nil || got.Username != "alice" {
		t.Error("expected alice once her cooldown aged out")
	}
}

func TestLockedIsTerminal(t *testing.T) {
	reg, now := newTestRegistry(t)
	pool := accounts("alice")

	reg.RecordFailure("alice", domain.ErrorKindAccountLocked)

	rec, _ := reg.Snapshot("alice")
	if rec.Status != domain.StatusLocked {
		t.Fatalf("status = %s, want locked", rec.Status)
	}

	reg.RecordSuccess("alice")
	*now = now.Add(24 * time.Hour)
	reg.Sweep()

	if got := reg.Select(pool); got != nil {
		t.Errorf("locked account selected: %v", got.Username)
	}

	// An operator reload clears the lockout
	reg.Reset()
	reg.Init(pool)
	if got := reg.Select(pool); got == nil {
		t.Error("expected selection after reset")
	}
}

func TestConsecutiveFailuresTriggerCooldown(t *testing.T) {
	reg, _ := newTestRegistry(t)

	for i := 0; i < 10; i++ {
		reg.RecordFailure("alice", domain.ErrorKindTimeout)
	}

	rec, _ := reg.Snapshot("alice")
	if rec.Status != domain.StatusCooldown {
		t.Errorf("status after 10 consecutive failures = %s, want cooldown", rec.Status)
	}
}

func TestSweepPromotesCooldownToProbation(t *testing.T) {
	reg, now := newTestRegistry(t)

	reg.RecordFailure("alice", domain.ErrorKindRateLimit)
	*now = now.Add(3 * time.Minute)
	reg.Sweep()

	rec, _ := reg.Snapshot("alice")
	if rec.Status != domain.StatusProbation {
		t.Fatalf("status = %s, want probation", rec.Status)
	}
	if rec.ConsecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0 after promotion", rec.ConsecutiveFailures)
	}
}

func TestProbationPromotesAfterThreeSuccesses(t *testing.T) {
	reg, now := newTestRegistry(t)

	reg.RecordFailure("alice", domain.ErrorKindRateLimit)
	*now = now.Add(3 * time.Minute)
	reg.Sweep()

	reg.RecordSuccess("alice")
	reg.RecordSuccess("alice")
	rec, _ := reg.Snapshot("alice")
	if rec.Status != domain.StatusProbation {
		t.Fatalf("promoted too early: %s", rec.Status)
	}

	reg.RecordSuccess("alice")
	rec, _ = reg.Snapshot("alice")
	if rec.Status != domain.StatusHealthy {
		t.Errorf("status = %s, want healthy after three successes", rec.Status)
	}
}

func TestSelectPrefersHealthyThenFailuresThenLRU(t *testing.T) {
	reg, now := newTestRegistry(t)
	pool := accounts("healthy-fresh", "healthy-stale", "flaky", "recovering")

	// healthy-stale used earlier than healthy-fresh
	reg.RecordSuccess("healthy-stale")
	*now = now.Add(time.Minute)
	reg.RecordSuccess("healthy-fresh")

	// flaky is healthy but carries a failure
	reg.RecordFailure("flaky", domain.ErrorKindTimeout)

	// recovering is on probation
	reg.RecordFailure("recovering", domain.ErrorKindRateLimit)
	*now = now.Add(3 * time.Minute)
	reg.Sweep()

	got := reg.Select(pool)
	if got == nil || got.Username != "healthy-stale" {
		t.Fatalf("selected %v, want healthy-stale", got)
	}
}

func TestSelectRespectsRateWindow(t *testing.T) {
	cfg := testHealthConfig()
	cfg.MaxRequestsPerWindow = 2
	reg := NewHealthRegistry(cfg, testLogger(t))
	now := time.Now()
	reg.now = func() time.Time { return now }

	pool := accounts("alice")
	reg.RecordSuccess("alice")
	reg.RecordSuccess("alice")

	if got := reg.Select(pool); got != nil {
		t.Errorf("expected alice excluded by rate window, got %v", got.Username)
	}

	// Attempts age out of the window
	now = now.Add(16 * time.Minute)
	if got := reg.Select(pool); got == nil {
		t.Error("expected alice eligible after the window slid past")
	}
}

func TestOverviewCounts(t *testing.T) {
	reg, _ := newTestRegistry(t)
	pool := accounts("a", "b", "c")

	reg.RecordFailure("b", domain.ErrorKindRateLimit)
	reg.RecordFailure("c", domain.ErrorKindAccountLocked)

	counts, perAccount := reg.Overview(pool)
	if counts[domain.StatusHealthy] != 1 || counts[domain.StatusCooldown] != 1 || counts[domain.StatusLocked] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if len(perAccount) != 3 {
		t.Errorf("perAccount has %d entries, want 3", len(perAccount))
	}
	if perAccount["a"].Status != "healthy" {
		t.Errorf("a status = %q", perAccount["a"].Status)
	}
}
