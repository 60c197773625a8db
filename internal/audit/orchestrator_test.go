package audit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/nao1215/webaudit/internal/config"
	"github.com/nao1215/webaudit/internal/log"
	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

func newTestOrchestrator(cfg *config.ScanConfig, reg module.Registry, spider Spider, opts ...Option) *Orchestrator {
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	return NewOrchestrator(cfg, reg, spider, fakeAnalyzer{}, opts...)
}

// TestOrchestrator_Immediate tests that every page is audited by every
// module, one page at a time.
func TestOrchestrator_Immediate(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	reg := recordingRegistry(3, rec)
	pages := pageURLs(4)

	spider := &fakeSpider{
		pages: pages,
		beforePage: func(i int) {
			// The previous page must be fully dispatched before the
			// spider is allowed to deliver the next one.
			if got := len(rec.all()); got != i*3 {
				t.Errorf("before page %d: %d runs recorded, want %d", i, got, i*3)
			}
		},
	}

	o := newTestOrchestrator(validConfig(false), reg, spider)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Mode != "immediate" {
		t.Errorf("expected immediate mode, got %q", report.Mode)
	}
	if report.PagesCrawled != 4 || report.PagesAudited != 4 {
		t.Errorf("expected 4 crawled and audited, got %d/%d", report.PagesCrawled, report.PagesAudited)
	}
	if len(report.Vulnerabilities) != 12 {
		t.Errorf("expected 12 findings, got %d", len(report.Vulnerabilities))
	}
	if report.Interrupted {
		t.Error("expected uninterrupted scan")
	}
	if report.State != StateDone.String() || o.State() != StateDone {
		t.Errorf("expected done state, got %q / %v", report.State, o.State())
	}
	if !slices.Equal(report.Modules, []string{"mod0", "mod1", "mod2"}) {
		t.Errorf("unexpected modules %v", report.Modules)
	}
	if !slices.Equal(rec.pagesSeen(), pages) {
		t.Errorf("pages audited out of order: %v", rec.pagesSeen())
	}
	for _, v := range report.Vulnerabilities {
		if v.Module == "" || v.URL == "" {
			t.Errorf("expected module and URL stamped on %+v", v)
		}
	}
}

// TestOrchestrator_ImmediateInterrupt tests that an interrupt in
// immediate mode stops the crawl without prompting and keeps the results
// gathered so far.
func TestOrchestrator_ImmediateInterrupt(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	reg := recordingRegistry(2, rec)

	prompted := false
	prompter := PrompterFunc(func(context.Context, int) (Choice, error) {
		prompted = true
		return ChoiceExit, nil
	})

	interrupt := NewInterrupt()
	spider := &fakeSpider{
		pages: pageURLs(5),
		beforePage: func(i int) {
			if i == 2 {
				interrupt.Raise()
			}
		},
	}

	o := newTestOrchestrator(validConfig(false), reg, spider, WithInterrupt(interrupt), WithPrompter(prompter))
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if prompted {
		t.Error("immediate mode must not prompt")
	}
	if !report.Interrupted {
		t.Error("expected interrupted report")
	}
	if spider.delivered != 3 {
		t.Errorf("expected crawl to stop after the interrupted page, delivered %d", spider.delivered)
	}
	if got := rec.pagesSeen(); !slices.Equal(got, pageURLs(2)) {
		t.Errorf("expected only pages before the interrupt audited, got %v", got)
	}
	if len(report.Vulnerabilities) != 4 {
		t.Errorf("expected partial results (4), got %d", len(report.Vulnerabilities))
	}
	if report.PagesAudited != 2 {
		t.Errorf("expected 2 pages audited, got %d", report.PagesAudited)
	}
	if interrupt.Raised() {
		t.Error("expected interrupt cleared once handled")
	}
}

// TestOrchestrator_ImmediateInterruptAfterLastPage tests that an interrupt
// arriving while the spider finishes is reported and cleared.
func TestOrchestrator_ImmediateInterruptAfterLastPage(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	interrupt := NewInterrupt()
	spider := &fakeSpider{
		pages:      pageURLs(3),
		afterCrawl: interrupt.Raise,
	}

	o := newTestOrchestrator(validConfig(false), recordingRegistry(2, rec), spider, WithInterrupt(interrupt))
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Interrupted {
		t.Error("expected interrupted report")
	}
	if interrupt.Raised() {
		t.Error("expected interrupt cleared once handled")
	}
	if report.PagesAudited != 3 || len(report.Vulnerabilities) != 6 {
		t.Errorf("unexpected totals: audited=%d findings=%d", report.PagesAudited, len(report.Vulnerabilities))
	}
}

// TestOrchestrator_Deferred tests that pages are buffered during the
// crawl and audited in crawl order afterwards.
func TestOrchestrator_Deferred(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	reg := recordingRegistry(2, rec)
	pages := pageURLs(5)

	spider := &fakeSpider{
		pages: pages,
		beforePage: func(i int) {
			if n := len(rec.all()); n != 0 {
				t.Errorf("page %d: %d runs before the crawl ended", i, n)
			}
		},
	}

	o := newTestOrchestrator(validConfig(true), reg, spider)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Mode != "deferred" {
		t.Errorf("expected deferred mode, got %q", report.Mode)
	}
	if !slices.Equal(rec.pagesSeen(), pages) {
		t.Errorf("expected buffer order %v, got %v", pages, rec.pagesSeen())
	}
	if report.PagesAudited != 5 || len(report.Vulnerabilities) != 10 {
		t.Errorf("unexpected totals: audited=%d findings=%d", report.PagesAudited, len(report.Vulnerabilities))
	}
}

// TestOrchestrator_DeferredInterrupt tests the operator choices after an
// interrupt in deferred mode.
func TestOrchestrator_DeferredInterrupt(t *testing.T) {
	t.Parallel()

	t.Run("audit now dispatches exactly the buffered pages", func(t *testing.T) {
		t.Parallel()

		for _, at := range []int{0, 2, 4} {
			t.Run(fmt.Sprintf("interrupt at page %d", at), func(t *testing.T) {
				t.Parallel()

				rec := &recorder{}
				reg := recordingRegistry(2, rec)
				interrupt := NewInterrupt()
				pages := pageURLs(6)

				var promptedWith int
				prompter := PrompterFunc(func(_ context.Context, buffered int) (Choice, error) {
					promptedWith = buffered
					return ChoiceAuditNow, nil
				})

				spider := &fakeSpider{
					pages: pages,
					beforePage: func(i int) {
						if i == at {
							interrupt.Raise()
						}
					},
				}

				o := newTestOrchestrator(validConfig(true), reg, spider, WithInterrupt(interrupt), WithPrompter(prompter))
				report, err := o.Run(context.Background())
				if err != nil {
					t.Fatalf("Run failed: %v", err)
				}

				want := pages[:at+1]
				if got := rec.pagesSeen(); !slices.Equal(got, want) {
					t.Errorf("dispatched pages = %v, want %v", got, want)
				}
				if promptedWith != at+1 {
					t.Errorf("prompter saw %d buffered pages, want %d", promptedWith, at+1)
				}
				if !report.Interrupted || interrupt.Raised() {
					t.Errorf("expected handled interrupt, report=%v raised=%v", report.Interrupted, interrupt.Raised())
				}
				if spider.delivered != at+1 {
					t.Errorf("expected crawl to stop, delivered %d", spider.delivered)
				}
			})
		}
	})

	t.Run("exit aborts without results", func(t *testing.T) {
		t.Parallel()

		rec := &recorder{}
		reg := recordingRegistry(2, rec)
		interrupt := NewInterrupt()
		spider := &fakeSpider{
			pages:      pageURLs(4),
			beforePage: func(int) { interrupt.Raise() },
		}

		o := newTestOrchestrator(validConfig(true), reg, spider,
			WithInterrupt(interrupt),
			WithPrompter(StaticPrompter(ChoiceExit)),
		)
		report, err := o.Run(context.Background())
		if !errors.Is(err, ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}
		if report != nil {
			t.Error("expected no report after abort")
		}
		if len(rec.all()) != 0 {
			t.Errorf("expected no dispatch after abort, got %v", rec.all())
		}
		if o.State() != StateAborted {
			t.Errorf("expected aborted state, got %v", o.State())
		}
	})

	t.Run("interrupt after the last page still prompts", func(t *testing.T) {
		t.Parallel()

		rec := &recorder{}
		interrupt := NewInterrupt()
		pages := pageURLs(5)

		var promptedWith int
		prompter := PrompterFunc(func(_ context.Context, buffered int) (Choice, error) {
			promptedWith = buffered
			return ChoiceAuditNow, nil
		})
		spider := &fakeSpider{
			pages:      pages,
			afterCrawl: interrupt.Raise,
		}

		o := newTestOrchestrator(validConfig(true), recordingRegistry(2, rec), spider,
			WithInterrupt(interrupt),
			WithPrompter(prompter),
		)
		report, err := o.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if promptedWith != 5 {
			t.Errorf("prompter saw %d buffered pages, want 5", promptedWith)
		}
		if got := rec.pagesSeen(); !slices.Equal(got, pages) {
			t.Errorf("dispatched pages = %v, want %v", got, pages)
		}
		if report.PagesAudited != 5 || len(report.Vulnerabilities) != 10 {
			t.Errorf("unexpected totals: audited=%d findings=%d", report.PagesAudited, len(report.Vulnerabilities))
		}
		if !report.Interrupted || interrupt.Raised() {
			t.Errorf("expected handled interrupt, report=%v raised=%v", report.Interrupted, interrupt.Raised())
		}
	})

	t.Run("exit after the last page aborts", func(t *testing.T) {
		t.Parallel()

		rec := &recorder{}
		interrupt := NewInterrupt()
		spider := &fakeSpider{
			pages:      pageURLs(3),
			afterCrawl: interrupt.Raise,
		}

		o := newTestOrchestrator(validConfig(true), recordingRegistry(1, rec), spider,
			WithInterrupt(interrupt),
			WithPrompter(StaticPrompter(ChoiceExit)),
		)
		if _, err := o.Run(context.Background()); !errors.Is(err, ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}
		if len(rec.all()) != 0 {
			t.Errorf("expected no dispatch after abort, got %v", rec.all())
		}
	})

	t.Run("prompt failure aborts", func(t *testing.T) {
		t.Parallel()

		reg := recordingRegistry(1, &recorder{})
		interrupt := NewInterrupt()
		spider := &fakeSpider{
			pages:      pageURLs(2),
			beforePage: func(int) { interrupt.Raise() },
		}
		promptErr := errors.New("stdin closed")
		prompter := PrompterFunc(func(context.Context, int) (Choice, error) {
			return ChoiceAuditNow, promptErr
		})

		o := newTestOrchestrator(validConfig(true), reg, spider, WithInterrupt(interrupt), WithPrompter(prompter))
		_, err := o.Run(context.Background())
		if !errors.Is(err, ErrAborted) || !errors.Is(err, promptErr) {
			t.Errorf("expected ErrAborted wrapping the prompt error, got %v", err)
		}
	})
}

// TestOrchestrator_DeferredSecondInterrupt tests that an interrupt during
// deferred dispatch stops auditing the remaining pages.
func TestOrchestrator_DeferredSecondInterrupt(t *testing.T) {
	t.Parallel()

	interrupt := NewInterrupt()
	rec := &recorder{}
	reg := module.NewRegistry(module.WithLogger(log.Discard()))
	reg.MustRegister(module.Descriptor{
		Info: model.ModuleInfo{ModName: "raiser"},
		New: func(page *model.PageRecord, _ module.Reporter) module.Check {
			return module.CheckFunc(func(context.Context) error {
				rec.record("raiser", page.URL)
				if page.URL == pageURLs(3)[1] {
					interrupt.Raise()
				}
				return nil
			})
		},
	})

	cfg := validConfig(true)
	cfg.Threads = 1
	o := newTestOrchestrator(cfg, reg, &fakeSpider{pages: pageURLs(3)}, WithInterrupt(interrupt))
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Interrupted {
		t.Error("expected interrupted report")
	}
	if got := rec.pagesSeen(); !slices.Equal(got, pageURLs(2)) {
		t.Errorf("expected dispatch to stop after the second page, got %v", got)
	}
	if report.PagesAudited != 2 {
		t.Errorf("expected 2 pages audited, got %d", report.PagesAudited)
	}
}

// TestOrchestrator_Validation tests that configuration errors stop the
// scan before crawling.
func TestOrchestrator_Validation(t *testing.T) {
	t.Parallel()

	t.Run("invalid configuration", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig(false)
		cfg.AuditLinks = false
		spider := &fakeSpider{pages: pageURLs(1)}

		o := newTestOrchestrator(cfg, recordingRegistry(1, &recorder{}), spider)
		_, err := o.Run(context.Background())
		if !errors.Is(err, config.ErrNoAuditTargets) {
			t.Errorf("expected ErrNoAuditTargets, got %v", err)
		}
		if spider.delivered != 0 {
			t.Error("expected no crawl")
		}
		if o.State() != StateAborted {
			t.Errorf("expected aborted state, got %v", o.State())
		}
	})

	t.Run("missing cookie jar", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig(false)
		cfg.CookieJar = "/nonexistent/cookies.txt"
		o := newTestOrchestrator(cfg, recordingRegistry(1, &recorder{}), &fakeSpider{})
		if _, err := o.Run(context.Background()); !errors.Is(err, config.ErrCookieJarNotFound) {
			t.Errorf("expected ErrCookieJarNotFound, got %v", err)
		}
	})

	t.Run("audit refuses unvalidated configuration", func(t *testing.T) {
		t.Parallel()

		spider := &fakeSpider{pages: pageURLs(1)}
		o := newTestOrchestrator(validConfig(false), recordingRegistry(1, &recorder{}), spider)
		if _, err := o.Audit(context.Background()); !errors.Is(err, ErrNotValidated) {
			t.Errorf("expected ErrNotValidated, got %v", err)
		}
		if spider.delivered != 0 {
			t.Error("expected no crawl")
		}
	})

	t.Run("audit accepts pre-validated configuration", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig(false)
		if err := cfg.Validate(); err != nil {
			t.Fatal(err)
		}
		o := newTestOrchestrator(cfg, recordingRegistry(1, &recorder{}), &fakeSpider{pages: pageURLs(1)})
		if _, err := o.Audit(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown module fails before crawling", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig(false)
		cfg.Modules = []string{"mod0", "does_not_exist"}
		spider := &fakeSpider{pages: pageURLs(1)}

		o := newTestOrchestrator(cfg, recordingRegistry(1, &recorder{}), spider)
		_, err := o.Run(context.Background())
		if !errors.Is(err, module.ErrNotFound) {
			t.Errorf("expected module.ErrNotFound, got %v", err)
		}
		if spider.delivered != 0 {
			t.Error("expected no crawl")
		}
	})
}

// TestOrchestrator_Cancel tests that a cancelled context is a hard abort.
func TestOrchestrator_Cancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	spider := &fakeSpider{
		pages: pageURLs(5),
		beforePage: func(i int) {
			if i == 1 {
				cancel()
			}
		},
	}

	o := newTestOrchestrator(validConfig(false), recordingRegistry(1, &recorder{}), spider)
	report, err := o.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if report != nil {
		t.Error("expected no report")
	}
}

// TestOrchestrator_CrawlError tests that spider failures are returned.
func TestOrchestrator_CrawlError(t *testing.T) {
	t.Parallel()

	crawlErr := errors.New("start page unreachable")
	o := newTestOrchestrator(validConfig(false), recordingRegistry(1, &recorder{}), &fakeSpider{err: crawlErr})
	if _, err := o.Run(context.Background()); !errors.Is(err, crawlErr) {
		t.Errorf("expected crawl error, got %v", err)
	}
}

// TestStateString tests state names.
func TestStateString(t *testing.T) {
	t.Parallel()

	tests := map[State]string{
		StateIdle:             "idle",
		StateValidating:       "validating",
		StateCrawling:         "crawling",
		StateDispatching:      "dispatching",
		StateBuffering:        "buffering",
		StateDeferredDispatch: "deferred_dispatch",
		StateDone:             "done",
		StateAborted:          "aborted",
		State(42):             "State(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
