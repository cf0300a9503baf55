// Package metrics keeps the shopping totals snapshot and exposes it, along
// with HTTP request metrics, through a prometheus registry.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopping"

// Counter counts rows; the flag narrows the count (non-empty lists,
// purchased items).
type Counter interface {
	Count(ctx context.Context, narrowed bool) (int, error)
}

type Snapshot struct {
	TotalLists     int       `json:"totalLists"`
	ActiveLists    int       `json:"activeLists"`
	TotalItems     int       `json:"totalItems"`
	PurchasedItems int       `json:"purchasedItems"`
	RefreshedAt    time.Time `json:"refreshedAt"`
}

type Collector struct {
	lists Counter
	items Counter
	now   func() time.Time

	mu   sync.RWMutex
	snap Snapshot

	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	refreshErrs prometheus.Counter
}

func NewCollector(lists, items Counter) *Collector {
	c := &Collector{
		lists:    lists,
		items:    items,
		now:      time.Now,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		refreshErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_refresh_errors_total",
			Help:      "Failed snapshot refreshes.",
		}),
	}

	gauge := func(name, help string, read func(Snapshot) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(c.Snapshot())) })
	}

	c.registry.MustRegister(
		c.requests,
		c.duration,
		c.refreshErrs,
		gauge("lists_total", "Shopping lists across all families.", func(s Snapshot) int { return s.TotalLists }),
		gauge("lists_active", "Shopping lists with at least one item.", func(s Snapshot) int { return s.ActiveLists }),
		gauge("items_total", "Shopping items across all families.", func(s Snapshot) int { return s.TotalItems }),
		gauge("items_purchased", "Purchased shopping items.", func(s Snapshot) int { return s.PurchasedItems }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Refresh recomputes the snapshot. On failure the previous snapshot is kept.
func (c *Collector) Refresh(ctx context.Context) error {
	var next Snapshot
	var err error
	if next.TotalLists, err = c.lists.Count(ctx, false); err != nil {
		return c.refreshFailed(err)
	}
	if next.ActiveLists, err = c.lists.Count(ctx, true); err != nil {
		return c.refreshFailed(err)
	}
	if next.TotalItems, err = c.items.Count(ctx, false); err != nil {
		return c.refreshFailed(err)
	}
	if next.PurchasedItems, err = c.items.Count(ctx, true); err != nil {
		return c.refreshFailed(err)
	}
	next.RefreshedAt = c.now().UTC()

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()
	return nil
}

func (c *Collector) refreshFailed(err error) error {
	c.refreshErrs.Inc()
	return fmt.Errorf("failed to refresh metrics: %w", err)
}

// Snapshot returns a copy of the last refreshed totals.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// ObserveRequest records one handled request. route is the mux pattern, not
// the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	c.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
