package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Report is the aggregated outcome of one scan.
//
// Design decision: We keep the counters next to the vulnerability list
// rather than computing them in every writer, because the JSON report,
// the Markdown report and the database all need the same numbers.
type Report struct {
	// ID uniquely identifies the scan.
	ID string `json:"id"`

	// Target is the URL the crawl started from.
	Target string `json:"target"`

	// Mode is "immediate" or "deferred".
	Mode string `json:"mode"`

	// State is the orchestrator's final state.
	State string `json:"state"`

	// StartedAt and FinishedAt bracket the scan.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// PagesCrawled counts pages delivered by the spider.
	PagesCrawled int `json:"pages_crawled"`

	// PagesAudited counts pages that went through dispatch.
	PagesAudited int `json:"pages_audited"`

	// Modules lists the loaded check modules.
	Modules []string `json:"modules"`

	// Interrupted is true when an operator interrupt shortened the scan.
	Interrupted bool `json:"interrupted"`

	// Vulnerabilities holds every finding collected from the registry.
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// NewReport creates a report for target with a fresh ID.
func NewReport(target, mode string) *Report {
	return &Report{
		ID:              uuid.NewString(),
		Target:          target,
		Mode:            mode,
		StartedAt:       time.Now(),
		Vulnerabilities: make([]Vulnerability, 0),
	}
}

// Duration returns how long the scan ran.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CountBySeverity returns the number of vulnerabilities per severity.
func (r *Report) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, v := range r.Vulnerabilities {
		counts[v.Severity]++
	}
	return counts
}

// HasVulnerabilities reports whether any vulnerability was found.
func (r *Report) HasVulnerabilities() bool {
	return len(r.Vulnerabilities) > 0
}

// SortedVulnerabilities returns the findings ordered by descending
// severity, then by URL and module. The report itself is not modified.
func (r *Report) SortedVulnerabilities() []Vulnerability {
	sorted := make([]Vulnerability, len(r.Vulnerabilities))
	copy(sorted, r.Vulnerabilities)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity != sorted[j].Severity {
			return sorted[i].Severity > sorted[j].Severity
		}
		if sorted[i].URL != sorted[j].URL {
			return sorted[i].URL < sorted[j].URL
		}
		return sorted[i].Module < sorted[j].Module
	})
	return sorted
}
