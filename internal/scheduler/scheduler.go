// Package scheduler advances orders along the lifecycle once they have sat
// in a status for long enough.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/orders"
	"github.com/bloombox/backend/internal/store"
)

const (
	DefaultInterval  = 30 * time.Minute
	DefaultBatchSize = 200
	lockKey          = "status_progression"
)

// Rule advances orders in From to To after they stayed there for After.
type Rule struct {
	From  models.OrderStatus `json:"from"`
	To    models.OrderStatus `json:"to"`
	After time.Duration      `json:"after"`
}

func DefaultRules() []Rule {
	return []Rule{
		{From: models.OrderStatusPending, To: models.OrderStatusConfirmed, After: 60 * time.Minute},
		{From: models.OrderStatusConfirmed, To: models.OrderStatusProcessing, After: 120 * time.Minute},
		{From: models.OrderStatusProcessing, To: models.OrderStatusShipped, After: 1440 * time.Minute},
		{From: models.OrderStatusShipped, To: models.OrderStatusDelivered, After: 2880 * time.Minute},
	}
}

type Transitioner interface {
	Transition(ctx context.Context, id uuid.UUID, to models.OrderStatus, note string) (*models.Order, error)
}

// Locker guards a tick across instances. TryLock reports false when another
// instance holds the lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Result struct {
	Advanced int  `json:"advanced"`
	Failed   int  `json:"failed"`
	Skipped  bool `json:"skipped"`
}

type Status struct {
	Running    bool       `json:"running"`
	InProgress bool       `json:"in_progress"`
	Interval   string     `json:"interval"`
	Rules      []Rule     `json:"rules"`
	LastRunAt  *time.Time `json:"last_run_at"`
	LastResult *Result    `json:"last_result"`
}

type Scheduler struct {
	Orders    store.OrderStore
	Service   Transitioner
	Rules     []Rule
	Locker    Locker
	BatchSize int

	interval time.Duration
	now      func() time.Time
	log      *slog.Logger

	running    atomic.Bool
	inProgress atomic.Bool

	mu         sync.Mutex
	lastRunAt  *time.Time
	lastResult *Result
}

func New(st store.OrderStore, svc *orders.Service, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		Orders:    st,
		Service:   svc,
		Rules:     DefaultRules(),
		BatchSize: DefaultBatchSize,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With("svc", "scheduler"),
	}
}

// WithClock replaces the time source; tests only.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run ticks immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("scheduler_already_running")
		return
	}
	defer s.running.Store(false)

	if s.Locker == nil {
		s.log.Warn("scheduler_unlocked", "reason", "no shared lock configured, run a single instance only")
	}
	s.log.Info("scheduler_started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler_stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// TriggerNow runs one tick outside the timer. It does not take the shared
// lock, only the local in-progress guard.
func (s *Scheduler) TriggerNow(ctx context.Context) Result {
	return s.tick(ctx, false)
}

// Tick applies every rule once. A tick that starts while another is still
// running returns immediately with Skipped set.
func (s *Scheduler) Tick(ctx context.Context) Result {
	return s.tick(ctx, true)
}

func (s *Scheduler) tick(ctx context.Context, shared bool) Result {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.log.Info("tick_skipped", "reason", "previous tick still running")
		return Result{Skipped: true}
	}
	defer s.inProgress.Store(false)

	if shared && s.Locker != nil {
		// expire a little before the next tick so the holder can take it again
		ok, err := s.Locker.TryLock(ctx, lockKey, s.interval*9/10)
		if err != nil {
			s.log.Error("tick_lock_error", "error", err)
			return Result{Skipped: true}
		}
		if !ok {
			s.log.Info("tick_skipped", "reason", "another instance holds the lock")
			return Result{Skipped: true}
		}
	}

	now := s.now()
	var res Result
	for _, rule := range s.Rules {
		advanced, failed := s.apply(ctx, rule, now)
		res.Advanced += advanced
		res.Failed += failed
	}

	s.mu.Lock()
	s.lastRunAt, s.lastResult = &now, &res
	s.mu.Unlock()

	s.log.Info("tick_done", "advanced", res.Advanced, "failed", res.Failed)
	return res
}

// apply pages through every order due under rule. Orders that fail stay
// due, so the offset skips past them on the next page.
func (s *Scheduler) apply(ctx context.Context, rule Rule, now time.Time) (advanced, failed int) {
	cutoff := now.Add(-rule.After)
	limit := s.BatchSize
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	seen := make(map[uuid.UUID]struct{})

	for offset := 0; ; {
		due, err := s.Orders.ListOrdersForProgression(ctx, rule.From, cutoff, offset, limit)
		if err != nil {
			s.log.Error("progression_query_error", "from", rule.From, "error", err)
			return advanced, failed
		}

		fresh := 0
		for _, o := range due {
			if ctx.Err() != nil {
				return advanced, failed
			}
			if _, ok := seen[o.ID]; ok {
				continue
			}
			seen[o.ID] = struct{}{}
			fresh++
			if _, err := s.Service.Transition(ctx, o.ID, rule.To, orders.NoteAutoProgressed); err != nil {
				failed++
				offset++
				s.log.Warn("progression_failed", "order_id", o.ID, "order_number", o.OrderNumber, "from", rule.From, "to", rule.To, "error", err)
				continue
			}
			advanced++
		}
		if len(due) < limit || fresh == 0 {
			return advanced, failed
		}
	}
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:    s.running.Load(),
		InProgress: s.inProgress.Load(),
		Interval:   s.interval.String(),
		Rules:      s.Rules,
		LastRunAt:  s.lastRunAt,
		LastResult: s.lastResult,
	}
}
