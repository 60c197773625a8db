package checks

import (
	"context"
	"regexp"

	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

// versionPattern matches a product token with a version, e.g. "nginx/1.25.3".
var versionPattern = regexp.MustCompile(`[A-Za-z][\w.-]*/\d+(\.\d+)*`)

// disclosureHeaders are response headers that reveal the technology stack.
var disclosureHeaders = []struct {
	name        string
	title       string
	needVersion bool
	severity    model.Severity
}{
	{"Server", "Server Version Disclosed", true, model.SeverityLow},
	{"X-Powered-By", "X-Powered-By Header Reveals Technology", false, model.SeverityLow},
	{"X-AspNet-Version", "ASP.NET Version Disclosed", false, model.SeverityLow},
	{"X-AspNetMvc-Version", "ASP.NET MVC Version Disclosed", false, model.SeverityLow},
	{"X-Generator", "Generator Header Reveals CMS", false, model.SeverityInfo},
	{"Via", "Via Header Reveals Proxy", false, model.SeverityInfo},
}

func serverDisclosureDescriptor() module.Descriptor {
	return module.Descriptor{
		Info: info("server_disclosure", "Server disclosure",
			"Reports response headers that reveal server software and versions."),
		New: func(page *model.PageRecord, rep module.Reporter) module.Check {
			return &serverDisclosure{page: page, rep: rep}
		},
	}
}

type serverDisclosure struct {
	page *model.PageRecord
	rep  module.Reporter
}

func (c *serverDisclosure) Run(_ context.Context) error {
	for _, h := range disclosureHeaders {
		value := c.page.Header(h.name)
		if value == "" {
			continue
		}
		if h.needVersion && !versionPattern.MatchString(value) {
			continue
		}
		c.rep.Report(model.Vulnerability{
			Name:        h.title,
			Description: "The " + h.name + " header discloses implementation details that help target known vulnerabilities.",
			Severity:    h.severity,
			Element:     model.ElementHeader,
			Variable:    h.name,
			Evidence:    value,
			Remedy:      "Remove the header or strip version information in the server configuration.",
		})
	}
	return nil
}
