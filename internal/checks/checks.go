package checks

import (
	"context"

	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

// Author is recorded in the metadata of every built-in module.
const Author = "webaudit contributors"

// Version of the built-in modules.
const Version = "0.1"

// Options carries the audit options that gate element-specific checks.
type Options struct {
	Links   bool
	Forms   bool
	Cookies bool
}

// Descriptors returns every built-in module.
func Descriptors(opts Options) []module.Descriptor {
	return []module.Descriptor{
		serverDisclosureDescriptor(),
		insecureCookiesDescriptor(opts),
		csrfFormsDescriptor(opts),
		emailDisclosureDescriptor(),
		htmlCommentsDescriptor(),
		openRedirectDescriptor(opts),
	}
}

// Register adds every built-in module to reg.
func Register(reg *module.MemoryRegistry, opts Options) error {
	for _, d := range Descriptors(opts) {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// info builds module metadata for a built-in module.
func info(modName, name, description string, deps ...string) model.ModuleInfo {
	return model.ModuleInfo{
		ModName:      modName,
		Name:         name,
		Description:  description,
		Author:       Author,
		Version:      Version,
		Dependencies: deps,
	}
}

// disabled is the check returned when an audit option turns a module off.
var disabled = module.CheckFunc(func(context.Context) error { return nil })

// structure returns the page structure or an empty one.
func structure(page *model.PageRecord) *model.Structure {
	if page.Structure == nil {
		return &model.Structure{}
	}
	return page.Structure
}
