package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelworks/aviary/internal/adapter/registry"
	"github.com/kestrelworks/aviary/internal/config"
	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/internal/core/ports"
	"github.com/kestrelworks/aviary/internal/logger"
)

// ErrStopped is returned for requests still queued when the dispatcher
// shuts down.
var ErrStopped = errors.New("dispatcher stopped")

// schedulerTick bounds how long a freed slot can go unnoticed; normal
// wakeups are event-driven.
const schedulerTick = 100 * time.Millisecond

type outcome struct {
	value any
	err   error
}

type pendingRequest struct {
	ctx      context.Context
	opName   string
	priority domain.Priority
	op       ports.Operation
	result   chan outcome
}

// Dispatcher runs queued operations against the account population.
// At most MaxConcurrency operations are in flight at once; transient
// failures are retried on a fresh account and proxy with exponential
// backoff.
type Dispatcher struct {
	cfg      config.DispatchConfig
	timeouts config.TimeoutConfig

	queue    *PriorityQueue
	registry *registry.HealthRegistry
	accounts ports.AccountSource
	proxies  ports.ProxySource
	factory  ports.ClientFactory
	logger   *logger.StyledLogger

	active atomic.Int64
	wake   chan struct{}

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

func NewDispatcher(
	cfg config.DispatchConfig,
	timeouts config.TimeoutConfig,
	reg *registry.HealthRegistry,
	accounts ports.AccountSource,
	proxies ports.ProxySource,
	factory ports.ClientFactory,
	logger *logger.StyledLogger,
) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		timeouts: timeouts,
		queue:    NewPriorityQueue(cfg.MaxQueueSize),
		registry: reg,
		accounts: accounts,
		proxies:  proxies,
		factory:  factory,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the scheduler loop.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.stopCh = make(chan struct{})
	d.running = true

	d.wg.Add(1)
	go d.schedulerLoop()
}

// Stop halts the scheduler and waits for in-flight operations to finish.
// Requests still queued fail with ErrStopped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	close(d.stopCh)
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()

	for req := d.queue.Dequeue(); req != nil; req = d.queue.Dequeue() {
		req.result <- outcome{err: ErrStopped}
	}
}

// Execute admits the operation at the given priority and blocks until it
// resolves, the caller's context is cancelled, or the dispatcher stops.
// Admission fails synchronously with domain.ErrQueueFull.
func (d *Dispatcher) Execute(ctx context.Context, opName string, priority domain.Priority, op ports.Operation) (any, error) {
	req := &pendingRequest{
		ctx:      ctx,
		opName:   opName,
		priority: priority,
		op:       op,
		result:   make(chan outcome, 1),
	}

	if err := d.queue.Enqueue(req); err != nil {
		return nil, err
	}
	d.signal()

	d.mu.Lock()
	stopCh := d.stopCh
	d.mu.Unlock()

	select {
	case res := <-req.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-stopCh:
		return nil, ErrStopped
	}
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) schedulerLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-d.wake:
		case <-ticker.C:
		}
		d.drain()
	}
}

// drain spawns queued requests while slots are free. The active count
// never exceeds MaxConcurrency.
func (d *Dispatcher) drain() {
	for d.active.Load() < int64(d.cfg.MaxConcurrency) {
		req := d.queue.Dequeue()
		if req == nil {
			return
		}

		d.active.Add(1)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.active.Add(-1)
			defer d.signal()
			d.run(req)
		}()
	}
}

func (d *Dispatcher) run(req *pendingRequest) {
	if err := req.ctx.Err(); err != nil {
		req.result <- outcome{err: err}
		return
	}

	value, err := d.attemptLoop(req)
	req.result <- outcome{value: value, err: err}
}

// attemptLoop is the retry loop: select an account, build a client, run
// the operation under its deadline class, record the outcome. Transient
// failures back off and retry; rate limits and lockouts retry straight
// away on a different account; auth and not-found propagate.
func (d *Dispatcher) attemptLoop(req *pendingRequest) (any, error) {
	deadline := d.timeouts.ForOperation(req.opName)

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		account := d.registry.Select(d.accounts.ListAccounts())
		if account == nil {
			return nil, domain.ErrNoUsableAccounts
		}

		proxy := d.proxies.PickRandom()

		client, err := d.factory.NewClient(req.ctx, account, proxy)
		if err == nil {
			var value any
			value, err = WithTimeout(req.ctx, req.opName, deadline, func(ctx context.Context) (any, error) {
				return req.op(ctx, client, account)
			})
			if err == nil {
				d.registry.RecordSuccess(account.Username)
				return value, nil
			}
		}

		kind := domain.ClassifyError(err)
		d.registry.RecordFailure(account.Username, kind)
		lastErr = err

		d.logger.WarnWithAccount("Operation failed on", account.Username,
			"op", req.opName, "attempt", attempt+1, "kind", kind.String(), "error", err)

		switch kind {
		case domain.ErrorKindAuth, domain.ErrorKindNotFound:
			return nil, err
		case domain.ErrorKindRateLimit, domain.ErrorKindAccountLocked:
			// Cooled down or locked out; try the next account immediately
			continue
		}

		if attempt < d.cfg.MaxRetries-1 {
			if err := d.backoff(req.ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// backoff sleeps base·2^attempt plus uniform jitter, abandoning the wait
// if the caller goes away or the dispatcher stops.
func (d *Dispatcher) backoff(ctx context.Context, attempt int) error {
	delay := d.cfg.RetryBaseDelay * (1 << attempt)
	if d.cfg.RetryJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(d.cfg.RetryJitter)))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopCh:
		return ErrStopped
	}
}

// GetStats assembles the stats document. Queue capacity reports the
// configured maximum, not a constant.
func (d *Dispatcher) GetStats() ports.DispatcherStats {
	accounts := d.accounts.ListAccounts()
	counts, perAccount := d.registry.Overview(accounts)

	var stats ports.DispatcherStats
	stats.Accounts.Total = len(accounts)
	stats.Accounts.Healthy = counts[domain.StatusHealthy]
	stats.Accounts.Probation = counts[domain.StatusProbation]
	stats.Accounts.Cooldown = counts[domain.StatusCooldown]
	stats.Accounts.Disabled = counts[domain.StatusDisabled]
	stats.Accounts.Locked = counts[domain.StatusLocked]
	stats.Proxies.Total = d.proxies.Count()
	stats.Queue.Depth = d.queue.Len()
	stats.Queue.MaxSize = d.queue.Cap()
	stats.Concurrency.Active = int(d.active.Load())
	stats.Concurrency.Max = d.cfg.MaxConcurrency
	stats.PerAccount = perAccount
	return stats
}
