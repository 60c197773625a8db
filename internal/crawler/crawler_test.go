package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// htmlHandler writes body as an HTML response.
func htmlHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body)) //nolint:errcheck
	}
}

// collect crawls with spider and returns the URLs handed to the callback.
func collect(t *testing.T, spider *Spider) []string {
	t.Helper()

	var urls []string
	err := spider.Crawl(context.Background(), func(pageURL, _ string, _ http.Header) bool {
		urls = append(urls, pageURL)
		return true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return urls
}

// TestSpider tests crawling against local servers.
func TestSpider(t *testing.T) {
	t.Parallel()

	t.Run("crawls single page", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(htmlHandler(`<html><head><title>Test</title></head><body>Hello</body></html>`))
		defer server.Close()

		spider := NewSpider(server.Client(), server.URL, WithMaxDepth(0))

		var gotHTML string
		var gotHeaders http.Header
		err := spider.Crawl(context.Background(), func(_, html string, headers http.Header) bool {
			gotHTML, gotHeaders = html, headers
			return true
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(gotHTML, "<title>Test</title>") {
			t.Errorf("expected page body, got %q", gotHTML)
		}
		if !strings.HasPrefix(gotHeaders.Get("Content-Type"), "text/html") {
			t.Errorf("expected response headers, got %v", gotHeaders)
		}
	})

	t.Run("follows links within depth limit in discovery order", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/", htmlHandler(`<a href="/page1">1</a><a href="/page2">2</a>`))
		mux.HandleFunc("/page1", htmlHandler(`<a href="/deep">deep</a>`))
		mux.HandleFunc("/page2", htmlHandler(`Page 2`))
		mux.HandleFunc("/deep", htmlHandler(`Deep`))

		server := httptest.NewServer(mux)
		defer server.Close()

		urls := collect(t, NewSpider(server.Client(), server.URL+"/", WithMaxDepth(1)))
		want := []string{server.URL + "/", server.URL + "/page1", server.URL + "/page2"}
		if fmt.Sprint(urls) != fmt.Sprint(want) {
			t.Errorf("expected %v, got %v", want, urls)
		}
	})

	t.Run("respects max pages limit", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/", htmlHandler(`<a href="/p1">1</a><a href="/p2">2</a><a href="/p3">3</a><a href="/p4">4</a>`))
		for i := 1; i <= 4; i++ {
			mux.HandleFunc(fmt.Sprintf("/p%d", i), htmlHandler(`Page`))
		}

		server := httptest.NewServer(mux)
		defer server.Close()

		spider := NewSpider(server.Client(), server.URL, WithMaxPages(3), WithMaxDepth(1))
		if urls := collect(t, spider); len(urls) != 3 {
			t.Errorf("expected 3 pages, got %d", len(urls))
		}
		if spider.Stats().PagesVisited != 3 {
			t.Errorf("expected stats to report 3 pages, got %+v", spider.Stats())
		}
	})

	t.Run("callback can stop the crawl", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/", htmlHandler(`<a href="/p1">1</a><a href="/p2">2</a>`))
		mux.HandleFunc("/p1", htmlHandler(`1`))
		mux.HandleFunc("/p2", htmlHandler(`2`))

		server := httptest.NewServer(mux)
		defer server.Close()

		calls := 0
		err := NewSpider(server.Client(), server.URL).Crawl(context.Background(), func(string, string, http.Header) bool {
			calls++
			return calls < 2
		})
		if err != nil {
			t.Fatalf("expected nil error on callback stop, got %v", err)
		}
		if calls != 2 {
			t.Errorf("expected 2 callbacks, got %d", calls)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(500 * time.Millisecond)
			_, _ = w.Write([]byte(`<html><body>Slow</body></html>`)) //nolint:errcheck
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := NewSpider(server.Client(), server.URL).Crawl(ctx, func(string, string, http.Header) bool { return true })
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})

	t.Run("avoids duplicate visits", func(t *testing.T) {
		t.Parallel()

		var visits atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			visits.Add(1)
			htmlHandler(`<a href="/">Self</a><a href="/#top">Self Again</a>`)(w, r)
		})

		server := httptest.NewServer(mux)
		defer server.Close()

		collect(t, NewSpider(server.Client(), server.URL, WithMaxDepth(2)))
		if visits.Load() != 1 {
			t.Errorf("expected 1 visit, got %d", visits.Load())
		}
	})

	t.Run("skips non-HTML responses and other hosts", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/", htmlHandler(`<a href="/data.json">json</a><a href="http://other.example/">other</a>`))
		mux.HandleFunc("/data.json", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`)) //nolint:errcheck
		})

		server := httptest.NewServer(mux)
		defer server.Close()

		urls := collect(t, NewSpider(server.Client(), server.URL))
		if len(urls) != 1 {
			t.Errorf("expected only the start page, got %v", urls)
		}
	})

	t.Run("sends user agent and extra headers", func(t *testing.T) {
		t.Parallel()

		var ua, custom atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua.Store(r.Header.Get("User-Agent"))
			custom.Store(r.Header.Get("X-Scan"))
			htmlHandler(`ok`)(w, r)
		}))
		defer server.Close()

		collect(t, NewSpider(server.Client(), server.URL,
			WithUserAgent("TestBot/1.0"),
			WithHeaders(map[string]string{"X-Scan": "1"})))

		if ua.Load() != "TestBot/1.0" || custom.Load() != "1" {
			t.Errorf("unexpected request headers: ua=%v x-scan=%v", ua.Load(), custom.Load())
		}
	})

	t.Run("honors robots.txt", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n")) //nolint:errcheck
		})
		mux.HandleFunc("/", htmlHandler(`<a href="/private/a">p</a><a href="/public">q</a>`))
		mux.HandleFunc("/private/a", htmlHandler(`secret`))
		mux.HandleFunc("/public", htmlHandler(`public`))

		server := httptest.NewServer(mux)
		defer server.Close()

		agent := NewRobotsAgent(server.Client(), "webaudit")
		urls := collect(t, NewSpider(server.Client(), server.URL+"/", WithRobots(agent)))

		for _, u := range urls {
			if strings.Contains(u, "/private") {
				t.Errorf("expected /private to be skipped, got %v", urls)
			}
		}
		if len(urls) != 2 {
			t.Errorf("expected 2 pages, got %v", urls)
		}
	})

	t.Run("applies politeness delay", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/", htmlHandler(`<a href="/a">a</a><a href="/b">b</a>`))
		mux.HandleFunc("/a", htmlHandler(`a`))
		mux.HandleFunc("/b", htmlHandler(`b`))

		server := httptest.NewServer(mux)
		defer server.Close()

		start := time.Now()
		collect(t, NewSpider(server.Client(), server.URL, WithDelay(50*time.Millisecond)))
		if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
			t.Errorf("expected at least 100ms for 3 requests, took %v", elapsed)
		}
	})

	t.Run("redirects stay on host and never repeat a page", func(t *testing.T) {
		t.Parallel()

		other := httptest.NewServer(htmlHandler(`elsewhere`))
		defer other.Close()

		mux := http.NewServeMux()
		mux.HandleFunc("/{$}", htmlHandler(`<a href="/go">go</a><a href="/dup">dup</a><a href="/p1">1</a>`))
		mux.HandleFunc("/go", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, other.URL+"/", http.StatusFound)
		})
		mux.HandleFunc("/dup", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/", http.StatusFound)
		})
		mux.HandleFunc("/p1", htmlHandler(`1`))

		server := httptest.NewServer(mux)
		defer server.Close()

		urls := collect(t, NewSpider(server.Client(), server.URL+"/", WithMaxDepth(1)))
		want := []string{server.URL + "/", server.URL + "/p1"}
		if fmt.Sprint(urls) != fmt.Sprint(want) {
			t.Errorf("expected %v, got %v", want, urls)
		}
	})

	t.Run("rejects invalid start URL", func(t *testing.T) {
		t.Parallel()

		err := NewSpider(nil, "ftp://example.com").Crawl(context.Background(), func(string, string, http.Header) bool { return true })
		if !errors.Is(err, ErrInvalidStartURL) {
			t.Errorf("expected ErrInvalidStartURL, got %v", err)
		}
	})
}

// TestSpiderOptions tests spider configuration options.
func TestSpiderOptions(t *testing.T) {
	t.Parallel()

	spider := NewSpider(http.DefaultClient, "http://example.com",
		WithMaxDepth(10),
		WithMaxPages(50),
		WithDelay(2*time.Second),
		WithMaxBodySize(1024),
		WithIgnorePatterns([]string{"/admin/*", "*.pdf"}),
		WithFollowPatterns([]string{"/api/*"}),
	)

	if spider.maxDepth != 10 || spider.maxPages != 50 {
		t.Errorf("unexpected limits: depth=%d pages=%d", spider.maxDepth, spider.maxPages)
	}
	if spider.delay != 2*time.Second {
		t.Errorf("expected delay 2s, got %v", spider.delay)
	}
	if spider.maxBodySize != 1024 {
		t.Errorf("expected maxBodySize 1024, got %d", spider.maxBodySize)
	}
	if len(spider.ignorePatterns) != 2 || len(spider.followPatterns) != 1 {
		t.Errorf("unexpected patterns: %v %v", spider.ignorePatterns, spider.followPatterns)
	}

	spider.markVisited("http://example.com/")
	spider.Reset()
	if spider.Stats().URLsSeen != 0 {
		t.Error("expected Reset to clear visited URLs")
	}
}

// TestMatchPattern tests glob pattern matching.
func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"admin prefix match", "/admin/*", "/admin/dashboard", true},
		{"admin prefix exact", "/admin/*", "/admin", true},
		{"admin prefix no match", "/admin/*", "/user/profile", false},
		{"admin prefix partial no match", "/admin/*", "/administrator", false},
		{"pdf extension", "*.pdf", "/docs/file.pdf", true},
		{"pdf extension no match", "*.pdf", "/docs/file.txt", false},
		{"exact match", "/logout", "/logout", true},
		{"exact no match", "/logout", "/login", false},
		{"wildcard middle", "/api/v?/users", "/api/v1/users", true},
		{"wildcard middle no match", "/api/v?/users", "/api/v10/users", false},
		{"logout prefix", "/logout*", "/logout-all", true},
		{"nested admin", "/admin/*", "/admin/users/edit", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

// TestShouldCrawl tests URL filtering based on patterns.
func TestShouldCrawl(t *testing.T) {
	t.Parallel()

	t.Run("no patterns allows all", func(t *testing.T) {
		t.Parallel()

		if !NewSpider(nil, "").shouldCrawl("http://example.com/any/path") {
			t.Error("expected all URLs to be allowed when no patterns set")
		}
	})

	t.Run("ignore wins over follow", func(t *testing.T) {
		t.Parallel()

		spider := NewSpider(nil, "",
			WithIgnorePatterns([]string{"/api/internal/*"}),
			WithFollowPatterns([]string{"/api/*"}))

		if spider.shouldCrawl("http://example.com/api/internal/x") {
			t.Error("expected ignored URL to be blocked")
		}
		if !spider.shouldCrawl("http://example.com/api/public") {
			t.Error("expected followed URL to be allowed")
		}
		if spider.shouldCrawl("http://example.com/blog") {
			t.Error("expected URL outside follow patterns to be blocked")
		}
	})
}

// TestNormalizeURL tests URL normalization for deduplication.
func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"http://Example.com", "http://example.com/"},
		{"HTTP://example.com/a#frag", "http://example.com/a"},
		{"http://example.com/a?x=1", "http://example.com/a?x=1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := normalizeURL(tt.in); got != tt.want {
				t.Errorf("normalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestExtractLinks tests link extraction used to grow the crawl queue.
func TestExtractLinks(t *testing.T) {
	t.Parallel()

	body := `<html><head><base href="/app/"></head><body>
		<a href="page?id=1">rel</a>
		<a href="page?id=1#x">dup</a>
		<a href="javascript:void(0)">js</a>
		<a href="mailto:a@example.com">mail</a>
		<form action="/submit"></form>
		<iframe src="frame.html"></iframe>
	</body></html>`

	links := extractLinks("http://example.com/index.html", body)
	want := []string{
		"http://example.com/app/page?id=1",
		"http://example.com/submit",
		"http://example.com/app/frame.html",
	}
	if fmt.Sprint(links) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, links)
	}
}

// TestAnalyzer tests structure extraction.
func TestAnalyzer(t *testing.T) {
	t.Parallel()

	body := `<html><head><title> Shop </title></head><body>
		<!-- TODO remove debug endpoint -->
		<a href="/item?id=3&amp;ref=home">item</a>
		<a href="/item?id=3&amp;ref=home">again</a>
		<a href="mailto:x@example.com">mail</a>
		<form method="post" action="/login">
			<input name="user">
			<input type="password" name="pass">
			<input type="hidden" name="csrf_token" value="abc">
			<select name="lang"></select>
			<textarea name="bio">hi</textarea>
			<input type="submit">
		</form>
		<form><input name="q"></form>
		<p>Contact Sales@Example.com</p>
	</body></html>`

	headers := http.Header{}
	headers.Add("Set-Cookie", "sid=1; HttpOnly")

	s := NewAnalyzer().Analyze("http://example.com/shop/", body, headers)

	t.Run("title", func(t *testing.T) {
		t.Parallel()
		if s.Title != "Shop" {
			t.Errorf("expected title 'Shop', got %q", s.Title)
		}
	})

	t.Run("links with variables", func(t *testing.T) {
		t.Parallel()
		if len(s.Links) != 1 {
			t.Fatalf("expected 1 unique link, got %d: %+v", len(s.Links), s.Links)
		}
		if s.Links[0].Vars["id"] != "3" || s.Links[0].Vars["ref"] != "home" {
			t.Errorf("unexpected link vars: %v", s.Links[0].Vars)
		}
	})

	t.Run("forms", func(t *testing.T) {
		t.Parallel()
		if len(s.Forms) != 2 {
			t.Fatalf("expected 2 forms, got %d", len(s.Forms))
		}
		login := s.Forms[0]
		if login.Method != http.MethodPost || login.Action != "http://example.com/login" {
			t.Errorf("unexpected login form: %s %s", login.Method, login.Action)
		}
		if len(login.Fields) != 5 {
			t.Errorf("expected 5 named fields, got %d: %+v", len(login.Fields), login.Fields)
		}
		types := map[string]string{}
		for _, f := range login.Fields {
			types[f.Name] = f.Type
		}
		if types["user"] != "text" || types["lang"] != "select" || types["bio"] != "textarea" || types["csrf_token"] != "hidden" {
			t.Errorf("unexpected field types: %v", types)
		}

		search := s.Forms[1]
		if search.Method != http.MethodGet || search.Action != "http://example.com/shop/" {
			t.Errorf("expected empty action to resolve to the page, got %s %s", search.Method, search.Action)
		}
	})

	t.Run("comments emails cookies", func(t *testing.T) {
		t.Parallel()
		if len(s.Comments) != 1 || s.Comments[0] != "TODO remove debug endpoint" {
			t.Errorf("unexpected comments: %v", s.Comments)
		}
		if len(s.Emails) != 1 || s.Emails[0] != "sales@example.com" {
			t.Errorf("unexpected emails: %v", s.Emails)
		}
		if len(s.Cookies) != 1 || s.Cookies[0].Name != "sid" || !s.Cookies[0].HttpOnly {
			t.Errorf("unexpected cookies: %v", s.Cookies)
		}
	})
}

// TestRobotsAgent tests robots.txt evaluation.
func TestRobotsAgent(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte("User-agent: webaudit\nDisallow: /admin\n")) //nolint:errcheck
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	agent := NewRobotsAgent(server.Client(), "webaudit")
	ctx := context.Background()

	admin, _ := url.Parse(server.URL + "/admin/users")
	home, _ := url.Parse(server.URL + "/")

	if agent.Allowed(ctx, admin) {
		t.Error("expected /admin to be disallowed")
	}
	if !agent.Allowed(ctx, home) {
		t.Error("expected / to be allowed")
	}
	if fetches.Load() != 1 {
		t.Errorf("expected robots.txt to be cached, fetched %d times", fetches.Load())
	}

	rel, _ := url.Parse("/relative")
	if agent.Allowed(ctx, rel) {
		t.Error("expected relative URL to be rejected")
	}
}
