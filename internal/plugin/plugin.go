// Package plugin runs the shopping service's background work: the metrics
// refresh loop, the archive sweep for old purchased items and the host event
// subscriptions. It also answers health checks.
package plugin

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/famshop/internal/events"
	"github.com/vbonduro/famshop/internal/metrics"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Archiver removes purchased items that have not changed since cutoff.
type Archiver interface {
	DeletePurchasedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	MetricsInterval time.Duration
	AutoArchive     bool
	ArchiveAfter    time.Duration
	// SweepInterval defaults to an hour.
	SweepInterval time.Duration
	// Jobs run on their own interval next to the built-in loops.
	Jobs []Job
}

// Job is periodic housekeeping owned by another package.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

const (
	minResubscribe = time.Second
	maxResubscribe = time.Minute
)

// Health is the body of GET /health.
type Health struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Message   string            `json:"message"`
	Metrics   *metrics.Snapshot `json:"metrics,omitempty"`
}

func (h Health) Healthy() bool { return h.Status == StatusHealthy }

type Plugin struct {
	db       Pinger
	metrics  *metrics.Collector
	bus      events.Bus
	archiver Archiver
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	// retry is the first resubscribe delay; it doubles up to maxResubscribe.
	retry time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(db Pinger, collector *metrics.Collector, bus events.Bus, archiver Archiver, cfg Config, logger *slog.Logger) *Plugin {
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	return &Plugin{
		db:       db,
		metrics:  collector,
		bus:      bus,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		retry:    minResubscribe,
	}
}

// Init computes the first metrics snapshot. A failed refresh is logged and
// the zero snapshot is served until the next tick.
func (p *Plugin) Init(ctx context.Context) {
	p.refresh(ctx)
}

// Start launches the background loops. They stop when ctx is cancelled or
// Stop is called.
func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil {
		return errors.New("plugin already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p.cancel = cancel
	p.group = g

	g.Go(func() error {
		p.every(gctx, p.cfg.MetricsInterval, p.refresh)
		return nil
	})
	if p.cfg.AutoArchive && p.archiver != nil {
		g.Go(func() error {
			p.every(gctx, p.cfg.SweepInterval, func(ctx context.Context) {
				if _, err := p.Sweep(ctx); err != nil {
					p.logger.Error("archive sweep failed", "error", err)
				}
			})
			return nil
		})
	}
	for _, job := range p.cfg.Jobs {
		if job.Interval <= 0 || job.Run == nil {
			p.logger.Warn("skipping invalid job", "job", job.Name)
			continue
		}
		g.Go(func() error {
			p.every(gctx, job.Interval, job.Run)
			return nil
		})
	}
	if p.bus != nil {
		g.Go(func() error {
			p.subscribe(gctx)
			return nil
		})
	}

	p.logger.Info("plugin started",
		"metrics_interval", p.cfg.MetricsInterval.String(),
		"auto_archive", p.cfg.AutoArchive,
	)
	return nil
}

// Stop cancels the background loops and waits for them to return.
func (p *Plugin) Stop() error {
	p.mu.Lock()
	cancel, g := p.cancel, p.group
	p.cancel, p.group = nil, nil
	p.mu.Unlock()

	if g == nil {
		return nil
	}
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	p.logger.Info("plugin stopped")
	return nil
}

// Sweep deletes purchased items last updated before now minus ArchiveAfter.
func (p *Plugin) Sweep(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.cfg.ArchiveAfter)
	n, err := p.archiver.DeletePurchasedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("archived purchased items", "count", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
		p.refresh(ctx)
	}
	return n, nil
}

func (p *Plugin) Health(ctx context.Context) Health {
	ts := p.now().UnixMilli()
	if err := p.db.PingContext(ctx); err != nil {
		p.logger.Error("health check failed", "error", err)
		return Health{Status: StatusUnhealthy, Timestamp: ts, Message: "Database connection failed"}
	}
	snap := p.metrics.Snapshot()
	return Health{Status: StatusHealthy, Timestamp: ts, Message: "Plugin is healthy", Metrics: &snap}
}

// subscribe holds the family.updated subscription until ctx is done. A
// failed or dropped subscription is logged and retried with backoff; the
// other loops keep running.
func (p *Plugin) subscribe(ctx context.Context) {
	delay := p.retry
	for {
		err := p.bus.Subscribe(ctx, events.FamilyUpdated, func(ctx context.Context, e events.Event) {
			p.logger.Info("family updated", "family_id", e.FamilyID)
			p.refresh(ctx)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Error("event subscription failed", "event", events.FamilyUpdated, "retry_in", delay.String(), "error", err)
		} else {
			p.logger.Warn("event subscription closed", "event", events.FamilyUpdated, "retry_in", delay.String())
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = min(delay*2, maxResubscribe)
	}
}

func (p *Plugin) refresh(ctx context.Context) {
	if err := p.metrics.Refresh(ctx); err != nil {
		p.logger.Error("error updating metrics", "error", err)
	}
}

// every runs fn on each tick until ctx is done.
func (p *Plugin) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
