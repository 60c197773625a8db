package audit

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/nao1215/webaudit/internal/config"
	"github.com/nao1215/webaudit/internal/log"
	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

// testUnit is a module.Unit built from a function.
type testUnit struct {
	name     string
	newCheck func(page *model.PageRecord) module.Check
}

func (u testUnit) Name() string { return u.name }

func (u testUnit) Instantiate(page *model.PageRecord) module.Check {
	return u.newCheck(page)
}

func runUnit(name string, run func(ctx context.Context) error) module.Unit {
	return testUnit{
		name: name,
		newCheck: func(*model.PageRecord) module.Check {
			return module.CheckFunc(run)
		},
	}
}

// lifecycleCheck implements every optional lifecycle step.
type lifecycleCheck struct {
	prepare func(ctx context.Context) error
	run     func(ctx context.Context) error
	cleanup func(ctx context.Context) error
}

func (c *lifecycleCheck) Prepare(ctx context.Context) error { return c.prepare(ctx) }
func (c *lifecycleCheck) Run(ctx context.Context) error     { return c.run(ctx) }
func (c *lifecycleCheck) Cleanup(ctx context.Context) error { return c.cleanup(ctx) }

// fakeSpider delivers a fixed list of pages.
type fakeSpider struct {
	pages      []string
	beforePage func(i int)
	afterCrawl func()
	delivered  int
	err        error
}

func (s *fakeSpider) Crawl(ctx context.Context, onPage func(pageURL, html string, headers http.Header) bool) error {
	for i, p := range s.pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.beforePage != nil {
			s.beforePage(i)
		}
		s.delivered++
		headers := http.Header{"Content-Type": []string{"text/html"}}
		if !onPage(p, "<html><title>"+p+"</title></html>", headers) {
			return nil
		}
	}
	if s.afterCrawl != nil {
		s.afterCrawl()
	}
	return s.err
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(pageURL, _ string, _ http.Header) *model.Structure {
	return &model.Structure{Title: pageURL}
}

// recorder captures (module, page) executions in order.
type recorder struct {
	mu   sync.Mutex
	runs []string
}

func (r *recorder) record(module, pageURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, module+"@"+pageURL)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

// pagesSeen returns the distinct page URLs in first-seen order.
func (r *recorder) pagesSeen() []string {
	seen := make(map[string]bool)
	var out []string
	for _, run := range r.all() {
		for i := len(run) - 1; i >= 0; i-- {
			if run[i] == '@' {
				u := run[i+1:]
				if !seen[u] {
					seen[u] = true
					out = append(out, u)
				}
				break
			}
		}
	}
	return out
}

// recordingRegistry returns a registry with n modules that record their
// runs and report one LOW finding per page.
func recordingRegistry(n int, rec *recorder) *module.MemoryRegistry {
	reg := module.NewRegistry(module.WithLogger(log.Discard()))
	for i := range n {
		name := fmt.Sprintf("mod%d", i)
		reg.MustRegister(module.Descriptor{
			Info: model.ModuleInfo{
				ModName:     name,
				Name:        "  Module " + name + "  ",
				Description: "records runs",
				Author:      "tester",
				Version:     "1.0",
			},
			New: func(page *model.PageRecord, rep module.Reporter) module.Check {
				return module.CheckFunc(func(context.Context) error {
					rec.record(name, page.URL)
					rep.Report(model.Vulnerability{
						Name:     "finding",
						Severity: model.SeverityLow,
						Element:  model.ElementBody,
					})
					return nil
				})
			},
		})
	}
	return reg
}

func validConfig(deferred bool) *config.ScanConfig {
	cfg := config.NewScanConfig()
	cfg.URL = "http://example.com/"
	cfg.AuditLinks = true
	cfg.Modules = []string{config.WildcardModule}
	cfg.Threads = 2
	cfg.ModsRunLast = deferred
	return cfg
}

func pageURLs(n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = fmt.Sprintf("http://example.com/page%d", i)
	}
	return out
}
