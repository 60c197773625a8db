package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webaudit"

// Collector records crawl and dispatch metrics.
type Collector struct {
	registry *prometheus.Registry

	pagesCrawled    prometheus.Counter
	pagesBuffered   prometheus.Gauge
	unitsTotal      *prometheus.CounterVec
	vulnerabilities *prometheus.CounterVec
	dispatchSeconds prometheus.Histogram
	interrupts      prometheus.Counter
}

// Unit outcomes used as the "outcome" label of webaudit_units_total.
const (
	OutcomeExecuted = "executed"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// New creates a Collector with all metrics registered.
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pagesCrawled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_crawled_total",
			Help:      "Total number of pages delivered by the crawler",
		}),
		pagesBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pages_buffered",
			Help:      "Pages waiting for deferred dispatch",
		}),
		unitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Check units processed, by module and outcome",
		}, []string{"module", "outcome"}),
		vulnerabilities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vulnerabilities_total",
			Help:      "Vulnerabilities reported, by severity",
		}, []string{"severity"}),
		dispatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time to run every loaded check unit against one page",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		interrupts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_total",
			Help:      "Interrupts observed by the orchestrator",
		}),
	}

	collectors := []prometheus.Collector{
		c.pagesCrawled,
		c.pagesBuffered,
		c.unitsTotal,
		c.vulnerabilities,
		c.dispatchSeconds,
		c.interrupts,
	}
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return c, nil
}

// PageCrawled counts one crawled page.
func (c *Collector) PageCrawled() {
	if c == nil {
		return
	}
	c.pagesCrawled.Inc()
}

// SetBuffered sets the number of pages waiting for deferred dispatch.
func (c *Collector) SetBuffered(n int) {
	if c == nil {
		return
	}
	c.pagesBuffered.Set(float64(n))
}

// Unit counts one check unit outcome for module.
func (c *Collector) Unit(module, outcome string) {
	if c == nil {
		return
	}
	c.unitsTotal.WithLabelValues(module, outcome).Inc()
}

// Skipped counts n units abandoned because of an interrupt.
func (c *Collector) Skipped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.unitsTotal.WithLabelValues("", OutcomeSkipped).Add(float64(n))
}

// Vulnerability counts one finding of the given severity.
func (c *Collector) Vulnerability(severity string) {
	if c == nil {
		return
	}
	c.vulnerabilities.WithLabelValues(severity).Inc()
}

// ObserveDispatch records the duration of one page dispatch.
func (c *Collector) ObserveDispatch(d time.Duration) {
	if c == nil {
		return
	}
	c.dispatchSeconds.Observe(d.Seconds())
}

// Interrupted counts one observed interrupt.
func (c *Collector) Interrupted() {
	if c == nil {
		return
	}
	c.interrupts.Inc()
}

// Handler returns an http.Handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics at addr under /metrics until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx) //nolint:contextcheck // ctx is already done
	}
}
