package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	server := httptest.NewServer(c.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(body)
}

// TestCollector tests that recorded values are exposed.
func TestCollector(t *testing.T) {
	t.Parallel()

	c, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.PageCrawled()
	c.PageCrawled()
	c.SetBuffered(3)
	c.Unit("server_disclosure", OutcomeExecuted)
	c.Unit("csrf_forms", OutcomeFailed)
	c.Skipped(2)
	c.Skipped(0)
	c.Vulnerability("HIGH")
	c.ObserveDispatch(20 * time.Millisecond)
	c.Interrupted()

	body := scrape(t, c)

	want := []string{
		"webaudit_pages_crawled_total 2",
		"webaudit_pages_buffered 3",
		`webaudit_units_total{module="server_disclosure",outcome="executed"} 1`,
		`webaudit_units_total{module="csrf_forms",outcome="failed"} 1`,
		`webaudit_units_total{module="",outcome="skipped"} 2`,
		`webaudit_vulnerabilities_total{severity="HIGH"} 1`,
		"webaudit_dispatch_duration_seconds_count 1",
		"webaudit_interrupts_total 1",
	}
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Errorf("expected metrics output to contain %q", w)
		}
	}
}

// TestCollector_Independent tests that collectors do not share a registry.
func TestCollector_Independent(t *testing.T) {
	t.Parallel()

	a, err := New()
	if err != nil {
		t.Fatal(err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("second collector failed to register: %v", err)
	}

	a.PageCrawled()
	if strings.Contains(scrape(t, b), "webaudit_pages_crawled_total 1") {
		t.Error("expected second collector to be unaffected")
	}
}

// TestCollector_Nil tests that a nil collector is a no-op.
func TestCollector_Nil(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.PageCrawled()
	c.SetBuffered(1)
	c.Unit("x", OutcomeExecuted)
	c.Skipped(1)
	c.Vulnerability("LOW")
	c.ObserveDispatch(time.Second)
	c.Interrupted()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 from nil collector, got %d", rec.Code)
	}
}

// TestCollector_Serve tests that Serve stops when the context is cancelled.
func TestCollector_Serve(t *testing.T) {
	t.Parallel()

	c, err := New()
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Serve(ctx, "127.0.0.1:0", nil)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
