package module

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/nao1215/webaudit/internal/model"
)

// builtinPathPrefix is used as the path of descriptors without one.
const builtinPathPrefix = "builtin/"

// MemoryRegistry is a Registry over descriptors compiled into the binary.
type MemoryRegistry struct {
	mu        sync.RWMutex
	available map[string]Descriptor
	loaded    []*loadedUnit
	store     *ResultStore
	logger    *slog.Logger
}

// Option configures a MemoryRegistry.
type Option func(*MemoryRegistry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *MemoryRegistry) {
		r.logger = logger
	}
}

// WithResultStore makes the registry report into store.
func WithResultStore(store *ResultStore) Option {
	return func(r *MemoryRegistry) {
		r.store = store
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *MemoryRegistry {
	r := &MemoryRegistry{
		available: make(map[string]Descriptor),
		store:     NewResultStore(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes a descriptor available for loading.
func (r *MemoryRegistry) Register(d Descriptor) error {
	name := d.Info.ModName
	if name == "" || d.New == nil {
		return fmt.Errorf("%w: %q", ErrInvalidDescriptor, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.available[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	if d.Info.Path == "" {
		d.Info.Path = builtinPathPrefix + name
	}
	r.available[name] = d
	return nil
}

// MustRegister is like Register but panics on error.
// Use it only for descriptors fixed at compile time.
func (r *MemoryRegistry) MustRegister(descs ...Descriptor) *MemoryRegistry {
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// ListAvailable maps every registered module name to its path.
func (r *MemoryRegistry) ListAvailable() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.available))
	for name, d := range r.available {
		out[name] = d.Info.Path
	}
	return out
}

// Names returns the registered module names in sorted order.
func (r *MemoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.available))
}

// Load adds the named module to the loaded set.
// Loading a module that is already loaded is a no-op.
func (r *MemoryRegistry) Load(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.available[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	for _, u := range r.loaded {
		if u.desc.Info.ModName == name {
			return nil
		}
	}

	r.loaded = append(r.loaded, &loadedUnit{desc: d, store: r.store})
	r.logger.Debug("module loaded", "module", name)
	return nil
}

// ListLoaded returns the loaded units in load order.
func (r *MemoryRegistry) ListLoaded() []Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Unit, len(r.loaded))
	for i, u := range r.loaded {
		out[i] = u
	}
	return out
}

// Info returns the metadata of the i-th loaded unit.
func (r *MemoryRegistry) Info(i int) (model.ModuleInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.loaded) {
		return model.ModuleInfo{}, fmt.Errorf("%w: %d (loaded: %d)", ErrIndexOutOfRange, i, len(r.loaded))
	}
	return r.loaded[i].desc.Info, nil
}

// CollectResults returns every finding reported so far.
func (r *MemoryRegistry) CollectResults() []model.Vulnerability {
	return r.store.Results()
}

// Reset unloads every module.
func (r *MemoryRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = nil
}

// loadedUnit binds a descriptor to the registry's result store.
type loadedUnit struct {
	desc  Descriptor
	store *ResultStore
}

func (u *loadedUnit) Name() string {
	return u.desc.Info.ModName
}

func (u *loadedUnit) Instantiate(page *model.PageRecord) Check {
	return u.desc.New(page, pageReporter{
		module: u.desc.Info.ModName,
		url:    page.URL,
		next:   u.store,
	})
}
