package audit

import (
	"context"
	"net/http"

	"github.com/nao1215/webaudit/internal/metrics"
	"github.com/nao1215/webaudit/internal/model"
)

// Spider discovers pages. Crawl calls onPage for every page and stops
// when onPage returns false, when the site is exhausted, or when ctx is
// done.
type Spider interface {
	Crawl(ctx context.Context, onPage func(pageURL, html string, headers http.Header) bool) error
}

// Analyzer extracts the structure of one page.
type Analyzer interface {
	Analyze(pageURL, html string, headers http.Header) *model.Structure
}

// PageHandler consumes one page record. Returning false stops the crawl.
type PageHandler func(page *model.PageRecord) bool

// CrawlDriver turns the spider's raw pages into page records.
type CrawlDriver struct {
	spider   Spider
	analyzer Analyzer
	cookies  []*http.Cookie
	metrics  *metrics.Collector
	pages    int
}

// NewCrawlDriver creates a driver. cookies are attached to every page
// record; m may be nil.
func NewCrawlDriver(spider Spider, analyzer Analyzer, cookies []*http.Cookie, m *metrics.Collector) *CrawlDriver {
	return &CrawlDriver{
		spider:   spider,
		analyzer: analyzer,
		cookies:  cookies,
		metrics:  m,
	}
}

// Drive runs the crawl, building a PageRecord for every page and passing
// it to handle. It returns the spider's error.
func (d *CrawlDriver) Drive(ctx context.Context, handle PageHandler) error {
	return d.spider.Crawl(ctx, func(pageURL, html string, headers http.Header) bool {
		structure := d.analyzer.Analyze(pageURL, html, headers)
		page := model.NewPageRecord(pageURL, html, headers, structure, d.cookies)
		d.pages++
		d.metrics.PageCrawled()
		return handle(page)
	})
}

// Pages returns how many pages the driver has delivered.
func (d *CrawlDriver) Pages() int {
	return d.pages
}
