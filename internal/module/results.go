package module

import (
	"sync"

	"github.com/nao1215/webaudit/internal/model"
)

// ResultStore accumulates findings from concurrently running checks.
type ResultStore struct {
	mu      sync.Mutex
	results []model.Vulnerability
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// Report appends v. It is safe for concurrent use.
func (s *ResultStore) Report(v model.Vulnerability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, v)
}

// Results returns a copy of the findings in report order.
func (s *ResultStore) Results() []model.Vulnerability {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Vulnerability, len(s.results))
	copy(out, s.results)
	return out
}

// Len returns the number of findings.
func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// pageReporter stamps module name and page URL on findings that leave
// them empty.
type pageReporter struct {
	module string
	url    string
	next   Reporter
}

func (r pageReporter) Report(v model.Vulnerability) {
	if v.Module == "" {
		v.Module = r.module
	}
	if v.URL == "" {
		v.URL = r.url
	}
	r.next.Report(v)
}
