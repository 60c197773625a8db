package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nao1215/webaudit/internal/metrics"
	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
	"golang.org/x/sync/errgroup"
)

// DispatchStats summarizes one page dispatch.
type DispatchStats struct {
	// Executed counts units whose lifecycle completed without error.
	Executed int

	// Failed counts units that returned an error or panicked.
	Failed int

	// Skipped counts units that were never started because a worker
	// observed the interrupt or a cancelled context.
	Skipped int

	// Interrupted is true when at least one worker stopped early.
	Interrupted bool
}

// queueItem is a unit or a worker termination token.
type queueItem struct {
	unit module.Unit
	stop bool
}

// Dispatcher runs a set of check units against one page with bounded
// concurrency.
//
// Design decision: Workers are started per Dispatch call and joined
// before it returns, so no goroutine outlives the page it was started
// for. Starting a handful of goroutines is negligible next to the
// network-bound checks they run.
type Dispatcher struct {
	concurrency int
	interrupt   *Interrupt
	logger      *slog.Logger
	metrics     *metrics.Collector
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the logger used for unit failures.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatchMetrics records unit outcomes and dispatch durations.
func WithDispatchMetrics(m *metrics.Collector) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher with the given number of workers.
// A concurrency below 1 is raised to 1. interrupt may be nil.
func NewDispatcher(concurrency int, interrupt *Interrupt, opts ...DispatcherOption) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	d := &Dispatcher{
		concurrency: concurrency,
		interrupt:   interrupt,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Concurrency returns the number of workers per dispatch.
func (d *Dispatcher) Concurrency() int {
	return d.concurrency
}

// Dispatch runs every unit exactly once against page and returns when all
// workers have exited.
//
// The queue holds every unit followed by one termination token per
// worker. Before each dequeue a worker checks the interrupt and ctx; if
// either is set it stops taking work, while units already running are
// allowed to finish. Unit errors and panics are logged and counted and
// never stop a worker.
func (d *Dispatcher) Dispatch(ctx context.Context, units []module.Unit, page *model.PageRecord) DispatchStats {
	if len(units) == 0 {
		return DispatchStats{}
	}

	start := time.Now()

	queue := make(chan queueItem, len(units)+d.concurrency)
	for _, u := range units {
		queue <- queueItem{unit: u}
	}
	for range d.concurrency {
		queue <- queueItem{stop: true}
	}
	close(queue)

	var executed, failed atomic.Int64
	var interrupted atomic.Bool

	// Workers never return errors; the group is only a join barrier.
	var g errgroup.Group
	for range d.concurrency {
		g.Go(func() error {
			for {
				if d.interrupt.Raised() || ctx.Err() != nil {
					interrupted.Store(true)
					return nil
				}
				item := <-queue
				if item.stop {
					return nil
				}
				u := item.unit
				if err := d.execute(ctx, u, page); err != nil {
					failed.Add(1)
					d.metrics.Unit(unitName(u), metrics.OutcomeFailed)
					d.logger.Warn("check unit failed",
						"module", unitName(u),
						"url", page.URL,
						"error", err,
					)
					continue
				}
				executed.Add(1)
				d.metrics.Unit(u.Name(), metrics.OutcomeExecuted)
			}
		})
	}
	_ = g.Wait() //nolint:errcheck // Workers always return nil

	stats := DispatchStats{
		Executed:    int(executed.Load()),
		Failed:      int(failed.Load()),
		Interrupted: interrupted.Load(),
	}
	stats.Skipped = len(units) - stats.Executed - stats.Failed

	elapsed := time.Since(start)
	d.metrics.Skipped(stats.Skipped)
	d.metrics.ObserveDispatch(elapsed)
	d.logger.Debug("page dispatched",
		"url", page.URL,
		"executed", stats.Executed,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"elapsed", elapsed,
	)

	return stats
}

// execute drives one fresh check through Prepare, Run and Cleanup.
// Run is skipped when Prepare fails; Cleanup always runs once the check
// exists.
func (d *Dispatcher) execute(ctx context.Context, u module.Unit, page *model.PageRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnitPanicked, r)
		}
	}()

	if u == nil {
		return ErrNilUnit
	}

	check := u.Instantiate(page)
	if check == nil {
		return ErrNilCheck
	}

	var errs []error
	if p, ok := check.(module.Preparer); ok {
		if perr := p.Prepare(ctx); perr != nil {
			errs = append(errs, fmt.Errorf("prepare: %w", perr))
		}
	}
	if len(errs) == 0 {
		if rerr := check.Run(ctx); rerr != nil {
			errs = append(errs, fmt.Errorf("run: %w", rerr))
		}
	}
	if c, ok := check.(module.Cleaner); ok {
		if cerr := c.Cleanup(ctx); cerr != nil {
			errs = append(errs, fmt.Errorf("cleanup: %w", cerr))
		}
	}
	return errors.Join(errs...)
}

func unitName(u module.Unit) string {
	if u == nil {
		return "<nil>"
	}
	return u.Name()
}
