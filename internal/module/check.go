package module

import (
	"context"

	"github.com/nao1215/webaudit/internal/model"
)

// Check is one instance of a check module bound to one page.
// A Check is built fresh for every (unit, page) pair and never shared.
type Check interface {
	// Run performs the check. Findings go to the Reporter the check was
	// built with; the returned error only signals that the check itself
	// failed to run.
	Run(ctx context.Context) error
}

// Preparer is implemented by checks that need a set-up step before Run.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Cleaner is implemented by checks that need a tear-down step after Run.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Reporter receives findings from running checks.
// Implementations must be safe for concurrent use.
type Reporter interface {
	Report(v model.Vulnerability)
}

// Factory builds a Check for page. rep is where the check reports findings.
type Factory func(page *model.PageRecord, rep Reporter) Check

// Descriptor registers a check module.
type Descriptor struct {
	// Info is the module metadata. Info.ModName is the registry key.
	Info model.ModuleInfo

	// New builds a Check for one page.
	New Factory
}

// Unit is a loaded check module.
type Unit interface {
	// Name returns the registry key of the module.
	Name() string

	// Instantiate builds a fresh Check bound to page.
	Instantiate(page *model.PageRecord) Check
}

// Registry is what the audit orchestrator needs from a module registry.
type Registry interface {
	// ListAvailable maps every registered module name to its path.
	ListAvailable() map[string]string

	// Load adds a module to the loaded set. Unknown names yield ErrNotFound.
	Load(name string) error

	// ListLoaded returns the loaded units in load order.
	ListLoaded() []Unit

	// Info returns the metadata of the i-th loaded unit.
	Info(i int) (model.ModuleInfo, error)

	// CollectResults returns every finding reported so far.
	CollectResults() []model.Vulnerability

	// Reset unloads every module. Collected results are kept.
	Reset()
}

// CheckFunc adapts a plain function to Check.
type CheckFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f CheckFunc) Run(ctx context.Context) error {
	return f(ctx)
}
