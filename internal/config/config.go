package config

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultThreads is the number of check modules run concurrently
	// against a single page when no thread count is given.
	DefaultThreads = 3

	// DefaultMaxDepth limits how many links away from the start URL the
	// spider will follow.
	DefaultMaxDepth = 10

	// DefaultMaxPages stops runaway crawls on sites that generate
	// unbounded URLs (calendars, search pages).
	DefaultMaxPages = 500

	// DefaultDelay is the politeness delay between two requests.
	DefaultDelay = 200 * time.Millisecond

	// DefaultTimeout applies to every individual HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits the response body read per page.
	// 5MB covers normal HTML while preventing memory exhaustion.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultTorStartupTimeout bounds the embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "webaudit"

	// Version is reported in the default User-Agent. The CLI overrides
	// it with the build version at start-up.
	Version = "0.1.0"

	// WildcardModule selects every available module.
	WildcardModule = "*"
)

// DefaultUserAgent identifies webaudit in HTTP requests.
// It is a variable so the CLI can stamp the build version into it.
var DefaultUserAgent = "webaudit/" + Version

// ScanConfig holds every option of a single scan.
// It is populated from an optional YAML file, then from CLI flags, and
// finally passed through Validate. The orchestrator reads it but never
// re-checks it.
//
// Design decision: We keep a single flat struct, like the flag set that
// fills it. Fields tagged yaml:"-" are derived by Validate.
type ScanConfig struct {
	// URL is the start URL of the crawl.
	URL string `yaml:"url,omitempty"`

	// Threads is the worker pool size used for each page.
	// Values <= 0 become DefaultThreads during validation.
	Threads int `yaml:"threads,omitempty"`

	// AuditLinks enables auditing of link query variables.
	AuditLinks bool `yaml:"links"`

	// AuditForms enables auditing of HTML forms.
	AuditForms bool `yaml:"forms"`

	// AuditCookies enables auditing of cookies.
	AuditCookies bool `yaml:"cookies"`

	// Modules is the list of check modules to load. "*" loads them all.
	Modules []string `yaml:"modules,omitempty"`

	// CookieJar is an optional path to a Netscape cookie-jar file whose
	// cookies are attached to every page record.
	CookieJar string `yaml:"cookie_jar,omitempty"`

	// UserAgent is sent with every request. Empty means DefaultUserAgent.
	UserAgent string `yaml:"user_agent,omitempty"`

	// ModsRunLast selects deferred mode: pages are buffered during the
	// crawl and audited once it ends.
	ModsRunLast bool `yaml:"mods_run_last"`

	// Verbose enables info level logging.
	Verbose bool `yaml:"verbose"`

	// Debug enables debug level logging.
	Debug bool `yaml:"debug"`

	// OnlyPositives limits console output to findings.
	OnlyPositives bool `yaml:"only_positives"`

	// MaxDepth is the maximum link depth from the start URL.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// MaxPages is the maximum number of pages to crawl. 0 means unlimited.
	MaxPages int `yaml:"max_pages,omitempty"`

	// Delay is the minimum interval between two requests.
	Delay time.Duration `yaml:"delay,omitempty"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MaxBodySize is the maximum number of body bytes read per page.
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`

	// RespectRobots makes the spider honor robots.txt.
	RespectRobots bool `yaml:"respect_robots"`

	// IgnorePatterns are path globs the spider never fetches.
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty"`

	// FollowPatterns, when set, restrict the spider to matching paths.
	FollowPatterns []string `yaml:"follow_patterns,omitempty"`

	// Headers are extra request headers sent with every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Proxy is an optional SOCKS5 proxy address in "host:port" form.
	Proxy string `yaml:"proxy,omitempty"`

	// UseTor routes traffic through an embedded Tor daemon.
	UseTor bool `yaml:"tor"`

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration `yaml:"tor_startup_timeout,omitempty"`

	// Sites holds per-host overrides loaded from the configuration file.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Target is the parsed URL. Set by Validate.
	Target *url.URL `yaml:"-"`

	// Cookies are the cookie-jar cookies. Set by Validate.
	Cookies []*http.Cookie `yaml:"-"`

	validated bool
}

// NewScanConfig creates a ScanConfig with default values.
// No audit flags or modules are enabled; callers must choose them.
func NewScanConfig() *ScanConfig {
	return &ScanConfig{
		Threads:           DefaultThreads,
		MaxDepth:          DefaultMaxDepth,
		MaxPages:          DefaultMaxPages,
		Delay:             DefaultDelay,
		Timeout:           DefaultTimeout,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for webaudit.
// On Linux: ~/.local/share/webaudit
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for webaudit.
// On Linux: ~/.config/webaudit
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and fills in derived values.
//
// The checks run in a fixed order and the first failure is returned:
//  1. an empty user agent becomes DefaultUserAgent
//  2. at least one audit flag must be set (ErrNoAuditTargets)
//  3. at least one module must be selected (ErrNoModulesSelected)
//  4. the URL must be present (ErrMissingURL) and parse as an absolute
//     http(s) URL (ErrInvalidURL)
//  5. a non-positive thread count becomes DefaultThreads
//  6. a cookie-jar path must be readable (ErrCookieJarNotFound) and is
//     parsed into Cookies
//
// Validate is idempotent: running it again on a validated configuration
// leaves every field as it was.
func (c *ScanConfig) Validate() error {
	c.validated = false

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	if !c.AuditLinks && !c.AuditForms && !c.AuditCookies {
		return ErrNoAuditTargets
	}

	if len(c.Modules) == 0 {
		return ErrNoModulesSelected
	}

	if strings.TrimSpace(c.URL) == "" {
		return ErrMissingURL
	}
	target, err := parseTarget(c.URL)
	if err != nil {
		return err
	}

	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}

	var cookies []*http.Cookie
	if c.CookieJar != "" {
		cookies, err = LoadCookieJar(c.CookieJar)
		if err != nil {
			return err
		}
	}

	c.Target = target
	c.Cookies = cookies
	c.validated = true
	return nil
}

// Validated reports whether the last call to Validate succeeded.
func (c *ScanConfig) Validated() bool {
	return c.validated
}

// Mode returns "deferred" when modules run after the crawl and
// "immediate" otherwise.
func (c *ScanConfig) Mode() string {
	if c.ModsRunLast {
		return "deferred"
	}
	return "immediate"
}

// parseTarget parses raw as an absolute http(s) URL.
func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q: scheme must be http or https", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q: missing host", ErrInvalidURL, raw)
	}
	return u, nil
}
