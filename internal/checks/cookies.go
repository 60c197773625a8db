package checks

import (
	"context"
	"net/http"
	"strings"

	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

func insecureCookiesDescriptor(opts Options) module.Descriptor {
	return module.Descriptor{
		Info: info("insecure_cookies", "Insecure cookies",
			"Reports cookies set without the Secure, HttpOnly or SameSite attributes."),
		New: func(page *model.PageRecord, rep module.Reporter) module.Check {
			if !opts.Cookies {
				return disabled
			}
			return &insecureCookies{page: page, rep: rep}
		},
	}
}

type insecureCookies struct {
	page *model.PageRecord
	rep  module.Reporter
}

func (c *insecureCookies) Run(_ context.Context) error {
	cookies := structure(c.page).Cookies
	if cookies == nil && c.page.Headers != nil {
		cookies = (&http.Response{Header: c.page.Headers}).Cookies()
	}

	https := strings.HasPrefix(strings.ToLower(c.page.URL), "https://")
	for _, ck := range cookies {
		if https && !ck.Secure {
			c.report(ck, "Cookie Without Secure Flag", model.SeverityMedium,
				"The cookie can be sent over unencrypted connections.",
				"Set the Secure attribute.")
		}
		if !ck.HttpOnly {
			c.report(ck, "Cookie Without HttpOnly Flag", model.SeverityLow,
				"The cookie is readable from JavaScript, which exposes it to XSS.",
				"Set the HttpOnly attribute.")
		}
		if ck.SameSite == http.SameSiteDefaultMode || (ck.SameSite == http.SameSiteNoneMode && !ck.Secure) {
			c.report(ck, "Cookie Without SameSite Restriction", model.SeverityLow,
				"The cookie is attached to cross-site requests.",
				"Set SameSite=Lax or SameSite=Strict.")
		}
	}
	return nil
}

func (c *insecureCookies) report(ck *http.Cookie, title string, sev model.Severity, desc, remedy string) {
	c.rep.Report(model.Vulnerability{
		Name:        title,
		Description: desc,
		Severity:    sev,
		Element:     model.ElementCookie,
		Variable:    ck.Name,
		Remedy:      remedy,
	})
}
