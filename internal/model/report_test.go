package model

import (
	"testing"
	"time"
)

// TestNewReport tests report construction.
func TestNewReport(t *testing.T) {
	t.Parallel()

	r := NewReport("http://example.com/", "deferred")

	if r.ID == "" {
		t.Error("expected non-empty ID")
	}
	if r.Target != "http://example.com/" {
		t.Errorf("unexpected target %q", r.Target)
	}
	if r.Mode != "deferred" {
		t.Errorf("unexpected mode %q", r.Mode)
	}
	if r.Vulnerabilities == nil {
		t.Error("expected initialized vulnerability slice")
	}
	if r.Duration() != 0 {
		t.Errorf("expected zero duration before finish, got %v", r.Duration())
	}

	other := NewReport("http://example.com/", "deferred")
	if other.ID == r.ID {
		t.Error("expected unique report IDs")
	}
}

// TestReportCounts tests severity aggregation and ordering.
func TestReportCounts(t *testing.T) {
	t.Parallel()

	r := NewReport("http://example.com/", "immediate")
	r.Vulnerabilities = []Vulnerability{
		{Module: "b", URL: "http://example.com/b", Severity: SeverityLow},
		{Module: "a", URL: "http://example.com/a", Severity: SeverityHigh},
		{Module: "c", URL: "http://example.com/a", Severity: SeverityLow},
	}
	r.FinishedAt = r.StartedAt.Add(2 * time.Second)

	counts := r.CountBySeverity()
	if counts[SeverityLow] != 2 || counts[SeverityHigh] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
	if !r.HasVulnerabilities() {
		t.Error("expected HasVulnerabilities to be true")
	}
	if r.Duration() != 2*time.Second {
		t.Errorf("expected 2s duration, got %v", r.Duration())
	}

	sorted := r.SortedVulnerabilities()
	if sorted[0].Severity != SeverityHigh {
		t.Errorf("expected HIGH first, got %v", sorted[0].Severity)
	}
	if sorted[1].URL != "http://example.com/a" || sorted[2].URL != "http://example.com/b" {
		t.Errorf("expected URL ordering within severity, got %v", sorted)
	}
	if r.Vulnerabilities[0].Module != "b" {
		t.Error("SortedVulnerabilities must not reorder the report")
	}
}

// TestModuleInfoTrimmed tests metadata normalization.
func TestModuleInfoTrimmed(t *testing.T) {
	t.Parallel()

	t.Run("trims text fields", func(t *testing.T) {
		t.Parallel()

		info := ModuleInfo{
			Name:         "  Server disclosure\n",
			Description:  "\tReports version banners ",
			Author:       " someone ",
			Version:      "0.1 ",
			Dependencies: []string{" a ", "", "b"},
			Path:         " builtin/server_disclosure ",
		}.Trimmed()

		if info.Name != "Server disclosure" || info.Description != "Reports version banners" {
			t.Errorf("expected trimmed name/description, got %q / %q", info.Name, info.Description)
		}
		if info.Author != "someone" || info.Version != "0.1" || info.Path != "builtin/server_disclosure" {
			t.Errorf("unexpected trimmed fields: %+v", info)
		}
		if len(info.Dependencies) != 2 || info.Dependencies[0] != "a" || info.Dependencies[1] != "b" {
			t.Errorf("unexpected dependencies %v", info.Dependencies)
		}
	})

	t.Run("nil dependencies become empty", func(t *testing.T) {
		t.Parallel()

		info := ModuleInfo{Name: "x"}.Trimmed()
		if info.Dependencies == nil || len(info.Dependencies) != 0 {
			t.Errorf("expected empty non-nil dependencies, got %#v", info.Dependencies)
		}
	})
}
