package config

import (
	"maps"
	"net/url"
	"time"
)

// SiteConfig holds per-host overrides from the configuration file.
// This allows customizing crawl behavior for a single site without
// repeating every flag.
type SiteConfig struct {
	// Headers are extra request headers for this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxDepth overrides the global depth when non-zero.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// Delay overrides the global politeness delay when non-zero.
	Delay string `yaml:"delay,omitempty"`

	// IgnorePatterns replace the global ignore patterns when set.
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty"`

	// FollowPatterns replace the global follow patterns when set.
	FollowPatterns []string `yaml:"follow_patterns,omitempty"`

	// CookieJar overrides the global cookie-jar path when set.
	CookieJar string `yaml:"cookie_jar,omitempty"`
}

// ApplySite merges the overrides configured for the host of c.URL into c.
// Keys of Sites are host names, optionally with a port. It is a no-op when
// nothing matches.
func (c *ScanConfig) ApplySite() {
	if len(c.Sites) == 0 || c.URL == "" {
		return
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return
	}

	site, ok := c.Sites[u.Host]
	if !ok {
		site, ok = c.Sites[u.Hostname()]
	}
	if !ok {
		return
	}

	if len(site.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(c.Headers, site.Headers)
	}
	if site.MaxDepth != 0 {
		c.MaxDepth = site.MaxDepth
	}
	if site.Delay != "" {
		if d, err := time.ParseDuration(site.Delay); err == nil {
			c.Delay = d
		}
	}
	if len(site.IgnorePatterns) > 0 {
		c.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		c.FollowPatterns = site.FollowPatterns
	}
	if site.CookieJar != "" {
		c.CookieJar = site.CookieJar
	}
}
