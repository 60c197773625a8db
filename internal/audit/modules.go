package audit

import (
	"fmt"
	"slices"

	"github.com/nao1215/webaudit/internal/config"
	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

// LoadModules resolves names against reg and loads them. The wildcard
// "*" loads every available module. An unknown name fails with
// module.ErrNotFound before anything is loaded.
func LoadModules(reg module.Registry, names []string) error {
	available := reg.ListAvailable()

	var resolved []string
	for _, name := range names {
		if name == config.WildcardModule {
			all := make([]string, 0, len(available))
			for n := range available {
				all = append(all, n)
			}
			slices.Sort(all)
			resolved = append(resolved, all...)
			continue
		}
		if _, ok := available[name]; !ok {
			return fmt.Errorf("failed to load module: %w: %s", module.ErrNotFound, name)
		}
		resolved = append(resolved, name)
	}

	for _, name := range resolved {
		if err := reg.Load(name); err != nil {
			return fmt.Errorf("failed to load module: %w", err)
		}
	}
	return nil
}

// ListModules returns the trimmed metadata of every available module,
// sorted by module name. Each module is loaded transiently; the registry
// is left with nothing loaded, whatever it held before.
func ListModules(reg module.Registry) ([]model.ModuleInfo, error) {
	available := reg.ListAvailable()
	names := make([]string, 0, len(available))
	for n := range available {
		names = append(names, n)
	}
	slices.Sort(names)

	reg.Reset()
	defer reg.Reset()

	infos := make([]model.ModuleInfo, 0, len(names))
	for i, name := range names {
		if err := reg.Load(name); err != nil {
			return nil, fmt.Errorf("failed to load module: %w", err)
		}
		info, err := reg.Info(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read module info: %w", err)
		}
		if info.Path == "" {
			info.Path = available[name]
		}
		infos = append(infos, info.Trimmed())
	}
	return infos, nil
}
