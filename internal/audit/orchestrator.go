package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/webaudit/internal/config"
	"github.com/nao1215/webaudit/internal/metrics"
	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

// State is a stage of the scan lifecycle.
type State int

// Scan states. StateDone and StateAborted are terminal.
const (
	StateIdle State = iota
	StateValidating
	StateCrawling
	StateDispatching
	StateBuffering
	StateDeferredDispatch
	StateDone
	StateAborted
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateValidating:       "validating",
	StateCrawling:         "crawling",
	StateDispatching:      "dispatching",
	StateBuffering:        "buffering",
	StateDeferredDispatch: "deferred_dispatch",
	StateDone:             "done",
	StateAborted:          "aborted",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Orchestrator runs a scan from validation to result collection.
type Orchestrator struct {
	cfg       *config.ScanConfig
	registry  module.Registry
	spider    Spider
	analyzer  Analyzer
	interrupt *Interrupt
	prompter  Prompter
	logger    *slog.Logger
	metrics   *metrics.Collector

	mu    sync.Mutex
	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithPrompter sets how deferred-mode interrupts are answered.
// The default is StaticPrompter(ChoiceAuditNow).
func WithPrompter(p Prompter) Option {
	return func(o *Orchestrator) {
		o.prompter = p
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithInterrupt shares an existing interrupt token, typically one already
// wired to a signal handler.
func WithInterrupt(i *Interrupt) Option {
	return func(o *Orchestrator) {
		o.interrupt = i
	}
}

// NewOrchestrator creates an orchestrator for cfg.
func NewOrchestrator(cfg *config.ScanConfig, registry module.Registry, spider Spider, analyzer Analyzer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		registry: registry,
		spider:   spider,
		analyzer: analyzer,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.interrupt == nil {
		o.interrupt = NewInterrupt()
	}
	if o.prompter == nil {
		o.prompter = StaticPrompter(ChoiceAuditNow)
	}
	return o
}

// Interrupt returns the token that stops the scan cooperatively.
func (o *Orchestrator) Interrupt() *Interrupt {
	return o.interrupt
}

// State returns the current state. It is safe to call concurrently.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()

	if prev != s {
		o.logger.Debug("state changed", "from", prev.String(), "to", s.String())
	}
}

// LoadModules loads the named modules into the registry.
func (o *Orchestrator) LoadModules(names []string) error {
	return LoadModules(o.registry, names)
}

// ListModules returns metadata for every available module and leaves the
// registry unloaded.
func (o *Orchestrator) ListModules() ([]model.ModuleInfo, error) {
	return ListModules(o.registry)
}

// Results returns the findings collected so far.
func (o *Orchestrator) Results() []model.Vulnerability {
	return o.registry.CollectResults()
}

// Run validates the configuration and audits the target.
// A validation failure leaves the orchestrator aborted and returns the
// configuration error unchanged.
func (o *Orchestrator) Run(ctx context.Context) (*model.Report, error) {
	o.setState(StateValidating)
	if err := o.cfg.Validate(); err != nil {
		o.setState(StateAborted)
		return nil, err
	}
	return o.Audit(ctx)
}

// Audit crawls the target and runs the loaded modules against every page.
// The configuration must already be validated.
//
// It returns ErrAborted when the operator chose to exit after an
// interrupt, and the context error when ctx was cancelled. In both cases
// no report is produced.
func (o *Orchestrator) Audit(ctx context.Context) (*model.Report, error) {
	if !o.cfg.Validated() {
		return nil, ErrNotValidated
	}

	if err := o.LoadModules(o.cfg.Modules); err != nil {
		o.setState(StateAborted)
		return nil, err
	}
	units := o.registry.ListLoaded()

	o.interrupt.Clear()

	report := model.NewReport(o.cfg.Target.String(), o.cfg.Mode())
	report.Modules = make([]string, len(units))
	for i, u := range units {
		report.Modules[i] = u.Name()
	}

	driver := NewCrawlDriver(o.spider, o.analyzer, o.cfg.Cookies, o.metrics)
	dispatcher := NewDispatcher(o.cfg.Threads, o.interrupt,
		WithDispatchLogger(o.logger),
		WithDispatchMetrics(o.metrics),
	)

	o.logger.Info("starting audit",
		"target", report.Target,
		"mode", report.Mode,
		"modules", len(units),
		"threads", dispatcher.Concurrency(),
	)

	o.setState(StateCrawling)

	var err error
	if o.cfg.ModsRunLast {
		err = o.auditDeferred(ctx, driver, dispatcher, units, report)
	} else {
		err = o.auditImmediate(ctx, driver, dispatcher, units, report)
	}
	report.PagesCrawled = driver.Pages()
	if err != nil {
		o.setState(StateAborted)
		return nil, err
	}

	report.Vulnerabilities = o.Results()
	for _, v := range report.Vulnerabilities {
		o.metrics.Vulnerability(v.Severity.String())
	}
	report.FinishedAt = time.Now()
	o.setState(StateDone)
	report.State = StateDone.String()

	o.logger.Info("audit complete",
		"pages_crawled", report.PagesCrawled,
		"pages_audited", report.PagesAudited,
		"vulnerabilities", len(report.Vulnerabilities),
		"interrupted", report.Interrupted,
		"elapsed", report.Duration(),
	)
	return report, nil
}

// auditImmediate dispatches every page while the spider waits. An
// interrupt ends the crawl after the current page without prompting.
func (o *Orchestrator) auditImmediate(
	ctx context.Context,
	driver *CrawlDriver,
	dispatcher *Dispatcher,
	units []module.Unit,
	report *model.Report,
) error {
	err := driver.Drive(ctx, func(page *model.PageRecord) bool {
		o.setState(StateDispatching)
		stats := dispatcher.Dispatch(ctx, units, page)
		countAudited(report, stats)
		if stats.Interrupted {
			report.Interrupted = true
			return false
		}
		o.setState(StateCrawling)
		return true
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	// The interrupt may arrive after the last dispatch while the spider
	// is still finishing.
	if o.interrupt.Raised() {
		report.Interrupted = true
	}
	if report.Interrupted {
		o.metrics.Interrupted()
		o.interrupt.Clear()
		o.logger.Warn("scan interrupted, returning partial results",
			"pages_audited", report.PagesAudited,
		)
	}
	return nil
}

// auditDeferred buffers pages during the crawl and dispatches them in
// crawl order afterwards. An interrupt during the crawl asks the prompter
// whether to audit the buffered pages now or to exit.
func (o *Orchestrator) auditDeferred(
	ctx context.Context,
	driver *CrawlDriver,
	dispatcher *Dispatcher,
	units []module.Unit,
	report *model.Report,
) error {
	var (
		buffer   []*model.PageRecord
		abortErr error
	)

	err := driver.Drive(ctx, func(page *model.PageRecord) bool {
		o.setState(StateBuffering)
		buffer = append(buffer, page)
		o.metrics.SetBuffered(len(buffer))

		if !o.interrupt.Raised() {
			return true
		}
		abortErr = o.askOperator(ctx, len(buffer), report)
		return false
	})

	if abortErr != nil {
		return abortErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	// An interrupt raised after the last page was buffered, while the
	// spider was still fetching, gets the same choice.
	if o.interrupt.Raised() {
		if err := o.askOperator(ctx, len(buffer), report); err != nil {
			return err
		}
	}

	o.setState(StateDeferredDispatch)
	for i, page := range buffer {
		stats := dispatcher.Dispatch(ctx, units, page)
		countAudited(report, stats)
		o.metrics.SetBuffered(len(buffer) - i - 1)

		if stats.Interrupted {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// A second interrupt while auditing ends the scan like
			// immediate mode does.
			report.Interrupted = true
			o.metrics.Interrupted()
			o.interrupt.Clear()
			o.logger.Warn("deferred audit interrupted, returning partial results",
				"pages_audited", report.PagesAudited,
				"pages_buffered", len(buffer),
			)
			break
		}
	}
	return nil
}

// askOperator asks whether the buffered pages should be audited now.
// On audit-now the interrupt is cleared and nil is returned; otherwise the
// result is ErrAborted.
func (o *Orchestrator) askOperator(ctx context.Context, buffered int, report *model.Report) error {
	o.metrics.Interrupted()
	choice, err := o.prompter.Prompt(ctx, buffered)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	if choice == ChoiceExit {
		return ErrAborted
	}

	o.logger.Info("skipping to audit", "pages", buffered)
	o.interrupt.Clear()
	report.Interrupted = true
	return nil
}

// countAudited counts a page as audited when at least one unit ran on it.
func countAudited(report *model.Report, stats DispatchStats) {
	if stats.Executed+stats.Failed > 0 {
		report.PagesAudited++
	}
}
