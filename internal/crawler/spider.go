package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrInvalidStartURL is returned by Crawl for a start URL that is not an
// absolute http(s) URL.
var ErrInvalidStartURL = errors.New("invalid start URL")

// PageFunc receives every crawled HTML page. Returning false stops the crawl.
type PageFunc = func(pageURL, html string, headers http.Header) bool

// Spider crawls a single web application.
//
// Design decision: The spider hands pages to a callback instead of
// returning a slice. The caller can then pause the crawl while it works on
// a page, and stop it early.
type Spider struct {
	client *http.Client
	start  string
	logger *slog.Logger

	// maxDepth limits how deep to crawl from the starting URL.
	// 0 means only the starting page, 1 means one level of links, etc.
	maxDepth int

	// maxPages limits the total number of pages to crawl. 0 means no limit.
	maxPages int

	// delay is the minimum interval between two requests.
	delay time.Duration

	userAgent   string
	headers     map[string]string
	maxBodySize int64

	// ignorePatterns are URL path patterns to skip during crawling.
	ignorePatterns []string

	// followPatterns, if set, are the only URL paths that are crawled.
	followPatterns []string

	robots *RobotsAgent

	mutex     sync.Mutex
	visited   map[string]bool
	pageCount int
	errCount  int
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of pages to crawl.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithDelay sets the minimum interval between requests.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		s.userAgent = ua
	}
}

// WithHeaders adds extra request headers.
func WithHeaders(headers map[string]string) SpiderOption {
	return func(s *Spider) {
		s.headers = headers
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) SpiderOption {
	return func(s *Spider) {
		s.maxBodySize = size
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts the crawl to URL paths matching at least
// one pattern.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithRobots makes the spider honor robots.txt through agent.
func WithRobots(agent *RobotsAgent) SpiderOption {
	return func(s *Spider) {
		s.robots = agent
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider that starts at startURL.
// The client carries proxy and cookie-jar configuration; see package
// httpclient.
func NewSpider(client *http.Client, startURL string, opts ...SpiderOption) *Spider {
	if client == nil {
		client = http.DefaultClient
	}
	s := &Spider{
		client:      client,
		start:       startURL,
		logger:      slog.Default(),
		maxDepth:    5,
		maxPages:    100,
		userAgent:   "webaudit",
		maxBodySize: 10 * 1024 * 1024, // 10MB
		visited:     make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// queueItem represents an item in the crawl queue.
type queueItem struct {
	url   string
	depth int
}

// Crawl fetches pages breadth-first and calls onPage for each HTML page,
// blocking until onPage returns. It returns nil when the site is
// exhausted, a limit is reached or onPage returns false, and ctx.Err()
// when ctx is cancelled.
func (s *Spider) Crawl(ctx context.Context, onPage PageFunc) error {
	start, err := url.Parse(s.start)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStartURL, err)
	}
	if (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidStartURL, s.start)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.delay), 1)
	}

	queue := []queueItem{{url: start.String(), depth: 0}}
	for len(queue) > 0 && !s.limitReached() {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := queue[0]
		queue = queue[1:]

		if s.isVisited(item.url) {
			continue
		}
		s.markVisited(item.url)

		if s.robots != nil {
			u, _ := url.Parse(item.url)
			if !s.robots.Allowed(ctx, u) {
				s.logger.Debug("disallowed by robots.txt", "url", item.url)
				continue
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		res, err := s.fetch(ctx, item.url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.countError()
			s.logger.Debug("fetch failed", "url", item.url, "error", err)
			continue
		}
		if !res.html {
			continue
		}

		// A redirect may land off the host or on a page already crawled.
		if normalizeURL(res.finalURL) != normalizeURL(item.url) {
			if !isSameHost(start.Host, res.finalURL) {
				s.logger.Debug("redirected off host", "url", item.url, "final_url", res.finalURL)
				continue
			}
			if s.isVisited(res.finalURL) {
				continue
			}
			s.markVisited(res.finalURL)
		}

		if item.depth < s.maxDepth {
			for _, link := range extractLinks(res.finalURL, res.body) {
				if !s.isVisited(link) && isSameHost(start.Host, link) && s.shouldCrawl(link) {
					queue = append(queue, queueItem{url: link, depth: item.depth + 1})
				}
			}
		}

		s.countPage()
		if !onPage(res.finalURL, res.body, res.headers) {
			s.logger.Debug("crawl stopped by page handler", "url", res.finalURL)
			return nil
		}
	}

	return nil
}

type fetchResult struct {
	finalURL string
	body     string
	headers  http.Header
	html     bool
}

// fetch performs a GET request and reads the body if it is HTML.
func (s *Spider) fetch(ctx context.Context, pageURL string) (*fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	res := &fetchResult{finalURL: finalURL, headers: resp.Header, html: isHTML(resp.Header.Get("Content-Type"))}
	if !res.html {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, s.maxBodySize))
		return res, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, err
	}
	res.body = string(body)
	return res, nil
}

// isHTML reports whether a Content-Type is HTML. A missing type is
// treated as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func (s *Spider) limitReached() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.maxPages > 0 && s.pageCount >= s.maxPages
}

func (s *Spider) countPage() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pageCount++
}

func (s *Spider) countError() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.errCount++
}

func (s *Spider) isVisited(pageURL string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.visited[normalizeURL(pageURL)]
}

func (s *Spider) markVisited(pageURL string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visited[normalizeURL(pageURL)] = true
}

// normalizeURL normalizes a URL for deduplication: the fragment is
// dropped, scheme and host are lower-cased and an empty path becomes "/".
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// isSameHost reports whether targetURL is on baseHost.
// The spider never leaves the host it was started on.
func isSameHost(baseHost, targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, baseHost)
}

// Reset clears the spider's state, allowing it to be reused.
func (s *Spider) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visited = make(map[string]bool)
	s.pageCount = 0
	s.errCount = 0
}

// Stats returns current crawl statistics.
func (s *Spider) Stats() SpiderStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return SpiderStats{
		PagesVisited: s.pageCount,
		URLsSeen:     len(s.visited),
		FetchErrors:  s.errCount,
	}
}

// SpiderStats contains crawl statistics.
type SpiderStats struct {
	// PagesVisited is the number of HTML pages handed to the callback.
	PagesVisited int

	// URLsSeen is the number of unique URLs dequeued.
	URLsSeen int

	// FetchErrors is the number of failed requests.
	FetchErrors int
}

// shouldCrawl checks a URL against the ignore and follow patterns.
// Ignore patterns win; when follow patterns are set, the path must match
// one of them.
func (s *Spider) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.followPatterns) == 0 {
		return true
	}
	for _, pattern := range s.followPatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard" and "/admin"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	// Bare file patterns match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}

	return false
}
