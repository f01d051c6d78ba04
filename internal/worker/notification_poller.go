package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ignite/domainwatch/internal/availability"
	"github.com/ignite/domainwatch/internal/domain"
	"github.com/ignite/domainwatch/internal/mailer"
	"github.com/ignite/domainwatch/internal/metrics"
	"github.com/ignite/domainwatch/internal/pkg/logger"
)

// =============================================================================
// NOTIFICATION POLLER: Emails Registrants When Their Domain Frees Up
// =============================================================================
// Every interval the poller snapshots all pending registrations and, one at a
// time, re-checks the domain. When it is available the notification is sent
// and only then is the row marked notified. Anything that goes wrong leaves
// the row pending for the next cycle, so delivery is at-least-once: a commit
// failure after a successful send produces a duplicate email next cycle.

const (
	// DefaultPollInterval matches the CHECK_INTERVAL_SECONDS default.
	DefaultPollInterval = 5 * time.Minute

	// DefaultLookupTimeout bounds one availability check.
	DefaultLookupTimeout = 15 * time.Second

	// DefaultSendTimeout bounds one email submission.
	DefaultSendTimeout = 45 * time.Second

	// DefaultCommitTimeout bounds the MarkNotified write.
	DefaultCommitTimeout = 10 * time.Second
)

// PendingStore is the part of the registration store the poller needs.
type PendingStore interface {
	ListPending(ctx context.Context) ([]domain.Registration, error)
	MarkNotified(ctx context.Context, id string) error
}

// Renderer turns a registration into the email to send.
type Renderer interface {
	Render(reg domain.Registration) (mailer.Message, error)
}

// PollerConfig tunes the poller. Zero values fall back to the defaults.
type PollerConfig struct {
	Interval       time.Duration
	LookupTimeout  time.Duration
	SendTimeout    time.Duration
	CommitTimeout  time.Duration
	RunImmediately bool
}

// CycleStats summarizes one pass over the pending snapshot.
type CycleStats struct {
	Pending      int `json:"pending"`
	Checked      int `json:"checked"`
	Available    int `json:"available"`
	LookupErrors int `json:"lookup_errors"`
	Sent         int `json:"sent"`
	SendErrors   int `json:"send_errors"`
	StoreErrors  int `json:"store_errors"`
	Panics       int `json:"panics"`
	// Skipped is set when another replica held the cycle lock.
	Skipped bool `json:"skipped"`
}

// CycleLock keeps replicas sharing a store from running cycles at the same
// time. See internal/pkg/distlock.
type CycleLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NotificationPoller drives registrations from pending to notified.
type NotificationPoller struct {
	store   PendingStore
	checker availability.Checker
	mailer  mailer.Mailer
	render  Renderer
	metrics *metrics.Metrics
	cfg     PollerConfig
	lock    CycleLock
	log     *logger.Logger
}

// NewNotificationPoller wires the poller. checker should not be cached: the
// poller must see fresh availability every cycle.
func NewNotificationPoller(store PendingStore, checker availability.Checker, m mailer.Mailer, render Renderer, met *metrics.Metrics, cfg PollerConfig) *NotificationPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = DefaultCommitTimeout
	}
	return &NotificationPoller{
		store:   store,
		checker: checker,
		mailer:  m,
		render:  render,
		metrics: met,
		cfg:     cfg,
		log:     logger.With("component", "notification_poller"),
	}
}

// SetLock makes every cycle run under l. A nil lock disables locking.
func (p *NotificationPoller) SetLock(l CycleLock) {
	p.lock = l
}

// Start runs cycles on a ticker until ctx is cancelled. Cycles run on this
// goroutine, so they never overlap; ticks missed during a long cycle are
// dropped by the ticker.
func (p *NotificationPoller) Start(ctx context.Context) {
	p.log.Info("starting", "interval", p.cfg.Interval.String(), "run_immediately", p.cfg.RunImmediately)

	if p.cfg.RunImmediately {
		p.RunOnce(ctx)
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("stopping")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single cycle over a fresh pending snapshot.
func (p *NotificationPoller) RunOnce(ctx context.Context) CycleStats {
	start := time.Now()
	var stats CycleStats

	if p.lock != nil {
		acquired, err := p.lock.Acquire(ctx)
		switch {
		case err != nil:
			// Run unlocked: a second replica can at worst duplicate an email.
			p.log.Warn("cycle lock unavailable; running unlocked", "error", err)
		case !acquired:
			stats.Skipped = true
			p.log.Debug("cycle lock held elsewhere; skipping cycle")
			return stats
		default:
			defer p.releaseLock(ctx)
		}
	}

	pending, err := p.store.ListPending(ctx)
	if err != nil {
		stats.StoreErrors++
		p.log.Error("listing pending registrations failed; skipping cycle", "error", err)
		p.metrics.ObservePollCycle(0, time.Since(start))
		return stats
	}
	stats.Pending = len(pending)

	for _, reg := range pending {
		if ctx.Err() != nil {
			p.log.Info("cycle interrupted", "remaining", stats.Pending-stats.Checked)
			break
		}
		p.processEntry(ctx, reg, &stats)
	}

	p.metrics.ObservePollCycle(stats.Pending, time.Since(start))
	if stats.Pending > 0 {
		p.log.Info("cycle complete",
			"pending", stats.Pending,
			"checked", stats.Checked,
			"available", stats.Available,
			"sent", stats.Sent,
			"lookup_errors", stats.LookupErrors,
			"send_errors", stats.SendErrors,
			"store_errors", stats.StoreErrors,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return stats
}

func (p *NotificationPoller) releaseLock(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CommitTimeout)
	defer cancel()
	if err := p.lock.Release(ctx); err != nil {
		p.log.Warn("releasing cycle lock failed", "error", err)
	}
}

// processEntry handles one registration. A panic is contained here so the
// rest of the snapshot still gets processed.
func (p *NotificationPoller) processEntry(ctx context.Context, reg domain.Registration, stats *CycleStats) {
	defer func() {
		if r := recover(); r != nil {
			stats.Panics++
			p.log.Error("panic while processing registration",
				"registration_id", reg.ID,
				"domain", reg.Domain,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	stats.Checked++
	available, err := p.check(ctx, reg.Domain)
	if err != nil {
		stats.LookupErrors++
		p.log.Warn("availability lookup failed", "domain", reg.Domain, "error", err)
		return
	}
	if !available {
		return
	}
	stats.Available++

	msg, err := p.render.Render(reg)
	if err != nil {
		stats.SendErrors++
		p.metrics.IncNotification(metrics.NotificationSendFailed)
		p.log.Error("rendering notification failed", "registration_id", reg.ID, "error", err)
		return
	}

	if err := p.send(ctx, msg); err != nil {
		stats.SendErrors++
		p.metrics.IncNotification(metrics.NotificationSendFailed)
		p.log.Warn("sending notification failed; will retry next cycle",
			"registration_id", reg.ID, "domain", reg.Domain, "email", reg.Email, "error", err)
		return
	}

	if err := p.commit(ctx, reg.ID); err != nil {
		stats.StoreErrors++
		p.metrics.IncNotification(metrics.NotificationCommitFailed)
		p.log.Error("marking registration notified failed; email may be sent again",
			"registration_id", reg.ID, "domain", reg.Domain, "error", err)
		return
	}

	stats.Sent++
	p.metrics.IncNotification(metrics.NotificationSent)
	p.log.Info("notification sent", "registration_id", reg.ID, "domain", reg.Domain, "email", reg.Email)
}

func (p *NotificationPoller) check(ctx context.Context, domainName string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.LookupTimeout)
	defer cancel()
	return p.checker.Check(ctx, domainName)
}

func (p *NotificationPoller) send(ctx context.Context, msg mailer.Message) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()
	return p.mailer.Send(ctx, msg)
}

// commit ignores ctx cancellation: once the email is out the write must
// still be attempted.
func (p *NotificationPoller) commit(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CommitTimeout)
	defer cancel()
	return p.store.MarkNotified(ctx, id)
}
