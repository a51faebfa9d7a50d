// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for the bridge. It outputs text/plain in Prometheus exposition
// format without requiring the heavy prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewCollector()

// MetricsCollector aggregates counters and gauges.
type MetricsCollector struct {
	mu        sync.Mutex
	counters  map[string]*Counter
	gauges    map[string]*Gauge
	startTime time.Time
}

func NewCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]*Counter),
		gauges:    make(map[string]*Gauge),
		startTime: time.Now(),
	}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns (creating if needed) the counter with the given name.
func (c *MetricsCollector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[name]; ok {
		return ctr
	}
	ctr := &Counter{name: name, help: help}
	c.counters[name] = ctr
	return ctr
}

// Gauge returns (creating if needed) the gauge with the given name.
func (c *MetricsCollector) Gauge(name, help string) *Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	c.gauges[name] = g
	return g
}

// Export renders all metrics in Prometheus exposition format.
func (c *MetricsCollector) Export() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder

	names := make([]string, 0, len(c.counters))
	for name := range c.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctr := c.counters[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, ctr.help, name, name, ctr.Value())
	}

	names = names[:0]
	for name := range c.gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g := c.gauges[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, g.help, name, name, g.Value())
	}

	fmt.Fprintf(&b, "# HELP signallama_uptime_seconds Process uptime\n# TYPE signallama_uptime_seconds gauge\nsignallama_uptime_seconds %d\n",
		int64(c.Uptime().Seconds()))
	return b.String()
}

// Handler serves the exposition format over HTTP.
func (c *MetricsCollector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, c.Export())
	})
}
