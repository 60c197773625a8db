package checks

import (
	"context"
	"net/http"
	"regexp"

	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

// tokenFieldPattern matches names of anti-CSRF token fields used by
// common frameworks.
var tokenFieldPattern = regexp.MustCompile(`(?i)(csrf|xsrf|authenticity_token|__requestverificationtoken|_token|nonce)`)

func csrfFormsDescriptor(opts Options) module.Descriptor {
	return module.Descriptor{
		Info: info("csrf_forms", "CSRF forms",
			"Reports state-changing forms without an anti-CSRF token."),
		New: func(page *model.PageRecord, rep module.Reporter) module.Check {
			if !opts.Forms {
				return disabled
			}
			return &csrfForms{page: page, rep: rep}
		},
	}
}

type csrfForms struct {
	page *model.PageRecord
	rep  module.Reporter
}

func (c *csrfForms) Run(ctx context.Context) error {
	for _, form := range structure(c.page).Forms {
		if err := ctx.Err(); err != nil {
			return err
		}
		if form.Method != http.MethodPost {
			continue
		}
		if hasTokenField(form) {
			continue
		}
		c.rep.Report(model.Vulnerability{
			Name:        "Form Without CSRF Token",
			Description: "A POST form has no hidden anti-CSRF token, so a third-party page can submit it on behalf of a logged-in user.",
			Severity:    model.SeverityMedium,
			Element:     model.ElementForm,
			Variable:    form.Action,
			Remedy:      "Add a per-session token to the form and verify it on the server.",
		})
	}
	return nil
}

func hasTokenField(form model.Form) bool {
	for _, f := range form.Fields {
		if f.Type == "hidden" && tokenFieldPattern.MatchString(f.Name) {
			return true
		}
	}
	return false
}
