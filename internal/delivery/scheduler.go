package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hub28/connect/internal/circuitbreaker"
	"github.com/hub28/connect/internal/metrics"
	"github.com/hub28/connect/internal/notification"
	"github.com/hub28/connect/internal/syncutil"
	"github.com/hub28/connect/internal/traces"
)

// Queue is the scheduler's view of the notification store.
type Queue interface {
	Get(ctx context.Context, id string) (*notification.Notification, error)
	ListDeliverable(ctx context.Context, limit int) ([]*notification.Notification, error)
	RecordAttemptResult(ctx context.Context, id string, outcome notification.Outcome, attemptErr string) (*notification.Notification, error)
	CountByStatus(ctx context.Context) (map[notification.Status]int, error)
	MaxAttempts() int
}

// TenantGate reports whether a tenant may still receive deliveries.
// Implementations return an error for unknown or inactive tenants.
type TenantGate interface {
	CheckTenant(ctx context.Context, tenantID string) error
}

// Renderer produces the outgoing message text for a notification.
type Renderer interface {
	RenderMessage(ctx context.Context, tenantID, notificationType, clientName string, amountCents int64, documentRef string) string
}

// Config holds the scheduler's tuning knobs.
type Config struct {
	Interval    time.Duration // pass frequency
	Workers     int           // concurrent delivery workers
	BaseDelay   time.Duration // backoff base
	MaxDelay    time.Duration // backoff cap
	SendTimeout time.Duration // per-attempt channel sender timeout
	BatchSize   int           // max notifications fetched per pass
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.Workers < 1 {
		c.Workers = 8
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 30 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = 30 * time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
}

// Scheduler periodically selects eligible notifications and attempts
// delivery through the channel sender on a worker pool. Attempts for
// different notifications run in parallel; attempts for the same
// notification are serialized through a per-id lock.
type Scheduler struct {
	queue    Queue
	tenants  TenantGate
	renderer Renderer
	sender   Sender
	breaker  *circuitbreaker.Breaker
	cfg      Config
	logger   *slog.Logger
	locks    *syncutil.ContextShardedMutex
	stop     chan struct{}
}

// NewScheduler creates a new retry scheduler.
func NewScheduler(queue Queue, tenants TenantGate, renderer Renderer, sender Sender, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		queue:    queue,
		tenants:  tenants,
		renderer: renderer,
		sender:   sender,
		breaker:  circuitbreaker.New(5, 30*time.Second),
		cfg:      cfg,
		logger:   logger,
		locks:    syncutil.NewContextShardedMutex(),
		stop:     make(chan struct{}),
	}
}

// Backoff returns the wait before the next attempt for a notification
// with the given attempt count: base doubled per attempt, capped.
func (s *Scheduler) Backoff(attempts int) time.Duration {
	delay := s.cfg.BaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	return delay
}

// Eligible reports whether a notification is due for an attempt.
// First attempts and manual retries (last_attempted_at cleared) are
// due immediately.
func (s *Scheduler) Eligible(n *notification.Notification, now time.Time) bool {
	if n.LastAttemptedAt.IsZero() {
		return true
	}
	return now.Sub(n.LastAttemptedAt) >= s.Backoff(n.AttemptCount)
}

// Start begins the scheduling loop. Call in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Pass(ctx)
		}
	}
}

// Stop signals the scheduler to stop.
func (s *Scheduler) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

// Pass runs one scheduling pass: fetch deliverable notifications,
// filter by backoff eligibility, and fan out to the worker pool.
func (s *Scheduler) Pass(ctx context.Context) {
	work, err := s.queue.ListDeliverable(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Warn("failed to list deliverable notifications", "error", err)
		return
	}

	now := time.Now()
	jobs := make(chan *notification.Notification)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				s.Attempt(ctx, n)
			}
		}()
	}

	queued := 0
	for _, n := range work {
		if !s.Eligible(n, now) {
			continue
		}
		select {
		case jobs <- n:
			queued++
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()

	if queued > 0 {
		s.logger.Debug("delivery pass completed", "attempted", queued, "fetched", len(work))
	}
	s.updatePendingGauge(ctx)
}

// Attempt delivers one notification. The per-id lock guarantees no
// two concurrent attempts against the same notification.
func (s *Scheduler) Attempt(ctx context.Context, n *notification.Notification) {
	unlock, err := s.locks.LockContext(ctx, n.ID)
	if err != nil {
		return
	}
	defer unlock()

	// The record was fetched before the lock; re-read it so an attempt
	// recorded in the meantime (another pass, a manual retry landing
	// early) cannot lead to a duplicate send or a stale attempt count.
	n, err = s.queue.Get(ctx, n.ID)
	if err != nil {
		return
	}
	if !n.Retryable(s.queue.MaxAttempts()) || !s.Eligible(n, time.Now()) {
		return
	}

	// A tenant that went inactive since the notification was queued
	// does not get messages; the notification keeps its state for a
	// later pass or admin action.
	if err := s.tenants.CheckTenant(ctx, n.TenantID); err != nil {
		metrics.DeliveriesTotal.WithLabelValues("skipped").Inc()
		return
	}

	// A dead gateway session for this tenant trips the breaker; skip
	// instead of burning attempt budget on it.
	if !s.breaker.Allow(n.TenantID) {
		metrics.DeliveriesTotal.WithLabelValues("skipped").Inc()
		return
	}

	message := s.renderer.RenderMessage(ctx, n.TenantID, string(n.Type), n.ClientName, n.AmountCents, n.DocumentRef)

	attemptCtx, span := traces.StartSpan(ctx, "delivery.attempt",
		traces.TenantID(n.TenantID),
		traces.NotificationID(n.ID),
		traces.NotificationType(string(n.Type)),
		traces.Attempt(n.AttemptCount+1),
	)
	defer span.End()

	sendCtx, cancel := context.WithTimeout(attemptCtx, s.cfg.SendTimeout)
	start := time.Now()
	result, sendErr := s.sender.Send(sendCtx, n.Phone, message)
	cancel()
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	}

	// The outcome is recorded even when the pass's context is being
	// torn down; the state machine applies it idempotently.
	recordCtx, recordCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer recordCancel()

	switch result {
	case ResultSuccess:
		s.breaker.RecordSuccess(n.TenantID)
		metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
		if _, err := s.queue.RecordAttemptResult(recordCtx, n.ID, notification.OutcomeSuccess, ""); err != nil {
			s.logger.Warn("failed to record success", "notification_id", n.ID, "error", err)
		}
	case ResultPermanent:
		metrics.DeliveriesTotal.WithLabelValues("permanent").Inc()
		s.logger.Info("permanent delivery failure",
			"notification_id", n.ID, "tenant_id", n.TenantID, "error", errMsg)
		if _, err := s.queue.RecordAttemptResult(recordCtx, n.ID, notification.OutcomePermanent, errMsg); err != nil {
			s.logger.Warn("failed to record permanent failure", "notification_id", n.ID, "error", err)
		}
	default:
		s.breaker.RecordFailure(n.TenantID)
		metrics.DeliveriesTotal.WithLabelValues("transient").Inc()
		if _, err := s.queue.RecordAttemptResult(recordCtx, n.ID, notification.OutcomeTransient, errMsg); err != nil {
			s.logger.Warn("failed to record transient failure", "notification_id", n.ID, "error", err)
		}
	}
}

func (s *Scheduler) updatePendingGauge(ctx context.Context) {
	counts, err := s.queue.CountByStatus(ctx)
	if err != nil {
		return
	}
	metrics.PendingNotifications.Set(float64(counts[notification.StatusPending]))
}
