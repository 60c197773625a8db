package checks

import (
	"context"
	"sort"
	"strings"

	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

// redirectParams are query variable names commonly used for redirects.
var redirectParams = map[string]bool{
	"url": true, "redirect": true, "redirect_uri": true, "redirect_url": true,
	"next": true, "return": true, "returnurl": true, "return_to": true,
	"goto": true, "dest": true, "destination": true, "continue": true,
	"redir": true, "target": true, "forward": true,
}

func openRedirectDescriptor(opts Options) module.Descriptor {
	return module.Descriptor{
		Info: info("open_redirect_params", "Open redirect parameters",
			"Reports link variables that carry a redirect target."),
		New: func(page *model.PageRecord, rep module.Reporter) module.Check {
			if !opts.Links {
				return disabled
			}
			return &openRedirect{page: page, rep: rep}
		},
	}
}

type openRedirect struct {
	page *model.PageRecord
	rep  module.Reporter
}

func (c *openRedirect) Run(_ context.Context) error {
	c.inspect(c.page.URL, c.page.URLVars)
	for _, link := range structure(c.page).Links {
		c.inspect(link.URL, link.Vars)
	}
	return nil
}

func (c *openRedirect) inspect(rawURL string, vars map[string]string) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !redirectParams[strings.ToLower(name)] {
			continue
		}
		value := vars[name]
		severity := model.SeverityLow
		if isAbsoluteTarget(value) {
			severity = model.SeverityMedium
		}
		c.rep.Report(model.Vulnerability{
			Name:        "Possible Open Redirect Parameter",
			Description: "The variable looks like a redirect target. If the server does not restrict it, attackers can send users to arbitrary sites.",
			Severity:    severity,
			URL:         rawURL,
			Element:     model.ElementLink,
			Variable:    name,
			Evidence:    value,
			Remedy:      "Accept only relative paths or an allow-list of hosts.",
		})
	}
}

func isAbsoluteTarget(v string) bool {
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "//")
}
