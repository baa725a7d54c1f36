// Package metrics exports overlay and telemetry counters in the Prometheus
// text format. All Collector methods are safe on a nil receiver.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gameoverlay/gameoverlay/pkg/types"
)

const (
	pluginLabel    = "plugin"
	resultLabel    = "result"
	reasonLabel    = "reason"
	enabledLabel   = "enabled"
	eventTypeLabel = "type"
)

// Fetch results.
const (
	FetchOK       = "ok"
	FetchNoUpdate = "no_update"
	FetchUnlock   = "unlock"
	FetchPanic    = "panic"
)

type Collector struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	hooksOK       prometheus.Counter
	hooksFailed   prometheus.Counter
	frames        prometheus.Counter
	renderPanics  prometheus.Counter
	pluginLocks   *prometheus.CounterVec
	pluginUnlocks *prometheus.CounterVec
	pluginLocked  *prometheus.GaugeVec
	fetches       *prometheus.CounterVec
	fetchTime     prometheus.Histogram
	journaled     *prometheus.CounterVec
	journalErrors *prometheus.CounterVec
	journalTime   prometheus.Histogram
}

// New creates a collector with its own registry, so several collectors can
// coexist in one process.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_decisions_total",
			Help: "Overlay activation decisions by outcome and deciding rule.",
		}, []string{enabledLabel, reasonLabel}),
		hooksOK: f.NewCounter(prometheus.CounterOpts{
			Name: "overlay_hooks_installed_total",
			Help: "Hooks installed on frame presentation entry points.",
		}),
		hooksFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "overlay_hook_failures_total",
			Help: "Hook installs that failed and left the target untouched.",
		}),
		frames: f.NewCounter(prometheus.CounterOpts{
			Name: "overlay_frames_total",
			Help: "Frames intercepted by the overlay dispatcher.",
		}),
		renderPanics: f.NewCounter(prometheus.CounterOpts{
			Name: "overlay_render_panics_total",
			Help: "Render callbacks that panicked and were recovered.",
		}),
		pluginLocks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_plugin_locks_total",
			Help: "Times a telemetry plugin locked onto a process.",
		}, []string{pluginLabel}),
		pluginUnlocks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_plugin_unlocks_total",
			Help: "Times a telemetry plugin was unlocked, by cause.",
		}, []string{pluginLabel, reasonLabel}),
		pluginLocked: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "overlay_plugin_locked",
			Help: "1 while the plugin holds the lock.",
		}, []string{pluginLabel}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_plugin_fetches_total",
			Help: "Plugin fetch calls by result.",
		}, []string{pluginLabel, resultLabel}),
		fetchTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlay_plugin_fetch_duration_seconds",
			Help:    "Time spent in plugin fetch calls.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10us to ~160ms
		}),
		journaled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_journal_events_total",
			Help: "Events written to the journal by type and plugin.",
		}, []string{eventTypeLabel, pluginLabel}),
		journalErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_journal_errors_total",
			Help: "Journal writes that failed, by event type.",
		}, []string{eventTypeLabel}),
		journalTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlay_journal_append_duration_seconds",
			Help:    "Time spent appending one event to the journal.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}
}

func (c *Collector) ObserveDecision(enabled bool, reason string) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues(strconv.FormatBool(enabled), reason).Inc()
}

func (c *Collector) IncHookInstalled() {
	if c == nil {
		return
	}
	c.hooksOK.Inc()
}

func (c *Collector) IncHookFailed() {
	if c == nil {
		return
	}
	c.hooksFailed.Inc()
}

func (c *Collector) IncFrame() {
	if c == nil {
		return
	}
	c.frames.Inc()
}

func (c *Collector) IncRenderPanic() {
	if c == nil {
		return
	}
	c.renderPanics.Inc()
}

func (c *Collector) PluginLocked(plugin string) {
	if c == nil {
		return
	}
	c.pluginLocks.WithLabelValues(plugin).Inc()
	c.pluginLocked.WithLabelValues(plugin).Set(1)
}

func (c *Collector) PluginUnlocked(plugin, reason string) {
	if c == nil {
		return
	}
	c.pluginUnlocks.WithLabelValues(plugin, reason).Inc()
	c.pluginLocked.WithLabelValues(plugin).Set(0)
}

func (c *Collector) ObserveFetch(plugin, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.fetches.WithLabelValues(plugin, result).Inc()
	c.fetchTime.Observe(d.Seconds())
}

// ObserveJournal records one journal append. Events without a plugin,
// such as overlay decisions, are counted under plugin "none".
func (c *Collector) ObserveJournal(ev types.Event, d time.Duration, err error) {
	if c == nil {
		return
	}
	eventType := ev.Type
	if eventType == "" {
		eventType = "unknown"
	}
	c.journalTime.Observe(d.Seconds())
	if err != nil {
		c.journalErrors.WithLabelValues(eventType).Inc()
		return
	}
	plugin := ev.Plugin
	if plugin == "" {
		plugin = "none"
	}
	c.journaled.WithLabelValues(eventType, plugin).Inc()
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
