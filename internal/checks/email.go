package checks

import (
	"context"
	"regexp"
	"strings"

	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// assetSuffixes filter out file names that look like addresses,
// e.g. "logo@2x.png".
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

func emailDisclosureDescriptor() module.Descriptor {
	return module.Descriptor{
		Info: info("email_disclosure", "E-mail disclosure",
			"Reports e-mail addresses published in page content."),
		New: func(page *model.PageRecord, rep module.Reporter) module.Check {
			return &emailDisclosure{page: page, rep: rep}
		},
	}
}

type emailDisclosure struct {
	page *model.PageRecord
	rep  module.Reporter
}

func (c *emailDisclosure) Run(_ context.Context) error {
	emails := structure(c.page).Emails
	if emails == nil {
		emails = emailPattern.FindAllString(c.page.HTML, -1)
	}

	seen := make(map[string]bool)
	for _, email := range emails {
		email = strings.ToLower(email)
		if seen[email] || isAssetName(email) {
			continue
		}
		seen[email] = true

		c.rep.Report(model.Vulnerability{
			Name:        "E-mail Address Disclosed",
			Description: "The page publishes an e-mail address that can be harvested for spam or phishing.",
			Severity:    model.SeverityInfo,
			Element:     model.ElementBody,
			Evidence:    email,
			Remedy:      "Use a contact form or obfuscate the address.",
		})
	}
	return nil
}

func isAssetName(s string) bool {
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
