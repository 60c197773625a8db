package model

import "strings"

// ModuleInfo describes an available check module.
type ModuleInfo struct {
	// ModName is the registry key the module is loaded by.
	ModName string `json:"mod_name"`

	// Name is the module's display name.
	Name string `json:"name"`

	// Description explains what the module checks.
	Description string `json:"description"`

	// Author is the module author.
	Author string `json:"author"`

	// Version is the module version.
	Version string `json:"version"`

	// Dependencies lists the modules this one depends on. Never nil.
	Dependencies []string `json:"dependencies"`

	// Path locates the module's source.
	Path string `json:"path"`
}

// Trimmed returns a copy with surrounding whitespace removed from every
// text field and a non-nil Dependencies slice.
func (m ModuleInfo) Trimmed() ModuleInfo {
	deps := make([]string, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		if d = strings.TrimSpace(d); d != "" {
			deps = append(deps, d)
		}
	}
	return ModuleInfo{
		ModName:      strings.TrimSpace(m.ModName),
		Name:         strings.TrimSpace(m.Name),
		Description:  strings.TrimSpace(m.Description),
		Author:       strings.TrimSpace(m.Author),
		Version:      strings.TrimSpace(m.Version),
		Dependencies: deps,
		Path:         strings.TrimSpace(m.Path),
	}
}
