// Package scheduler fans out one goroutine per enabled connection, each
// owning its own HTTP clients and circuit breaker, with graceful shutdown
// and periodic reconciliation against the Connection table.
package scheduler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/malwarebo/orderbridge/breaker"
	"github.com/malwarebo/orderbridge/logging"
	"github.com/malwarebo/orderbridge/odoo"
	"github.com/malwarebo/orderbridge/store"
	"github.com/malwarebo/orderbridge/webhook"
	"github.com/malwarebo/orderbridge/worker"
)

// Config carries the tunables the scheduler needs beyond what a single
// worker cycle uses.
type Config struct {
	MinInterval       time.Duration
	ReconcileInterval time.Duration
	ShutdownGrace     time.Duration
	HTTPTimeout       time.Duration
	BreakerConfig     breaker.Config
	RetryMaxAttempts  int
}

// Scheduler owns the fleet of per-connection tasks. No mutable state is
// shared between tasks; each has its own http.Client, Odoo client, and
// breaker instance rehydrated from its Connection row every cycle.
type Scheduler struct {
	cfg         Config
	connections *store.ConnectionRepo
	sentOrders  *store.SentOrderRepo
	retryItems  *store.RetryItemRepo
	syncLogs    *store.SyncLogRepo
	log         *logging.Logger

	mu    sync.Mutex
	tasks map[uint]*task
	wg    sync.WaitGroup
}

type task struct {
	cancel context.CancelFunc
	name   string
}

func New(cfg Config, connections *store.ConnectionRepo, sentOrders *store.SentOrderRepo, retryItems *store.RetryItemRepo, syncLogs *store.SyncLogRepo) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		connections: connections,
		sentOrders:  sentOrders,
		retryItems:  retryItems,
		syncLogs:    syncLogs,
		log:         logging.New("scheduler"),
		tasks:       make(map[uint]*task),
	}
}

// Run loads enabled connections, spawns one task per connection, then
// blocks running the reconciliation loop until ctx is cancelled. It
// returns once every task has exited or the shutdown grace period elapses.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.reconcile(ctx); err != nil {
		s.log.Error(ctx, "initial reconciliation failed", err, nil)
	}

	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-ticker.C:
			if err := s.reconcile(ctx); err != nil {
				s.log.Error(ctx, "reconciliation failed", err, nil)
			}
		}
	}
}

// reconcile diffs the live task set against the current enabled connection
// list: new connections get tasks, disabled/removed ones are cancelled.
func (s *Scheduler) reconcile(ctx context.Context) error {
	conns, err := s.connections.ListEnabled()
	if err != nil {
		return err
	}

	seen := make(map[uint]struct{}, len(conns))
	s.mu.Lock()
	for _, dc := range conns {
		seen[dc.ID] = struct{}{}
		if _, running := s.tasks[dc.ID]; running {
			continue
		}
		taskCtx, cancel := context.WithCancel(ctx)
		s.tasks[dc.ID] = &task{cancel: cancel, name: dc.Name}
		s.wg.Add(1)
		go s.runTask(taskCtx, dc)
	}
	for id, t := range s.tasks {
		if _, stillEnabled := seen[id]; !stillEnabled {
			t.cancel()
			delete(s.tasks, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// runTask is the per-connection loop: run one cycle, sleep, repeat. It
// never lets an unexpected error or panic escape; a panic in a cycle is
// logged and recorded as a breaker failure instead of killing the
// goroutine, mirroring the "outermost handler never lets an
// error escape" discipline used across this codebase's own goroutines.
func (s *Scheduler) runTask(ctx context.Context, dc *store.DecryptedConnection) {
	defer s.wg.Done()
	defer s.clearTask(dc.ID)

	log := logging.New("worker:" + dc.Name)
	httpClient := odoo.NewHTTPClient(s.cfg.HTTPTimeout)
	odooClient := odoo.NewClient(dc.BaseURL, dc.DBName, dc.Login, dc.APIKey, httpClient)
	sender := webhook.NewSender(httpClient)
	w := worker.New(odooClient, sender, s.connections, s.sentOrders, s.retryItems, s.syncLogs, s.cfg.RetryMaxAttempts, log)

	// The health checker probes reachability independently of the breaker,
	// so log lines can distinguish "endpoint down" from "breaker still
	// cooling down after it recovered".
	health := NewHealthChecker(odooClient.Authenticate, s.cfg.MinInterval, s.cfg.HTTPTimeout)
	health.Start()
	defer health.Stop()

	for {
		s.runCycleSafely(ctx, w, dc, log)
		if health.Status() == StatusUnhealthy {
			log.Warn(ctx, "health probe reports endpoint unreachable", map[string]interface{}{"last_check": health.LastCheck()})
		}
		if err := s.connections.UpdateHealthSnapshot(dc.ID, health.Status().String(), health.LastCheck(), health.ConsecutiveFailures()); err != nil {
			log.Error(ctx, "failed to persist health snapshot", err, nil)
		}

		interval := dc.EffectivePollInterval(int(s.cfg.MinInterval / time.Second))
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		fresh, err := s.connections.GetByID(dc.ID)
		if err != nil {
			log.Error(ctx, "failed to refresh connection snapshot", err, nil)
			continue
		}
		if !fresh.Enabled {
			return
		}
		dc = fresh
	}
}

func (s *Scheduler) runCycleSafely(ctx context.Context, w *worker.Worker, dc *store.DecryptedConnection, log *logging.Logger) {
	ctx = logging.WithCorrelationID(ctx, "")
	cb := breaker.FromSnapshot(s.cfg.BreakerConfig, &dc.Connection)
	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "poll cycle panicked", nil, map[string]interface{}{"recovered": r})
			cb.RecordFailure(time.Now())
			cb.Snapshot(&dc.Connection)
			if err := s.connections.UpdateCycleOutcome(dc.ID, nil, nil, &dc.Connection); err != nil {
				log.Error(ctx, "failed to persist breaker snapshot after panic", err, nil)
			}
		}
	}()

	result := w.RunCycle(ctx, &dc.Connection, dc.WebhookSecret, cb, false)
	if result.Err != nil {
		log.Warn(ctx, "poll cycle failed", map[string]interface{}{"error": result.Err.Error()})
	}
}

func (s *Scheduler) clearTask(id uint) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

// shutdown waits for all in-flight tasks to exit, bounded by ShutdownGrace.
func (s *Scheduler) shutdown() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.ShutdownGrace):
		s.log.Warn(context.Background(), "shutdown grace period elapsed with tasks still running", nil)
		return nil
	}
}

// RunOnce runs a single dry-run cycle for one connection, used by the
// `test` operator command; it does not participate in the scheduler's task
// set.
func RunOnce(ctx context.Context, cfg Config, connections *store.ConnectionRepo, sentOrders *store.SentOrderRepo, retryItems *store.RetryItemRepo, syncLogs *store.SyncLogRepo, dc *store.DecryptedConnection) worker.CycleResult {
	log := logging.New("worker:" + dc.Name)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	odooClient := odoo.NewClient(dc.BaseURL, dc.DBName, dc.Login, dc.APIKey, httpClient)
	sender := webhook.NewSender(httpClient)
	w := worker.New(odooClient, sender, connections, sentOrders, retryItems, syncLogs, cfg.RetryMaxAttempts, log)

	ctx = logging.WithCorrelationID(ctx, "")
	cb := breaker.FromSnapshot(cfg.BreakerConfig, &dc.Connection)
	return w.RunCycle(ctx, &dc.Connection, dc.WebhookSecret, cb, true)
}
