package checks

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
)

// sensitiveComment matches comments that leak development notes or
// credentials.
var sensitiveComment = regexp.MustCompile(`(?i)\b(todo|fixme|hack|password|passwd|api[_-]?key|secret|debug|admin|sql|select\s.+\sfrom)\b`)

// maxEvidence caps the evidence length of a reported comment.
const maxEvidence = 200

func htmlCommentsDescriptor() module.Descriptor {
	return module.Descriptor{
		Info: info("html_comments", "HTML comments",
			"Reports HTML comments containing development notes or credentials."),
		New: func(page *model.PageRecord, rep module.Reporter) module.Check {
			return &htmlComments{page: page, rep: rep}
		},
	}
}

type htmlComments struct {
	page     *model.PageRecord
	rep      module.Reporter
	comments []string
}

// Prepare collects the page comments, tokenizing the body when the
// analyzer did not provide them.
func (c *htmlComments) Prepare(_ context.Context) error {
	if s := structure(c.page); s.Comments != nil {
		c.comments = s.Comments
		return nil
	}

	z := html.NewTokenizer(strings.NewReader(c.page.HTML))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return nil
		case html.CommentToken:
			c.comments = append(c.comments, strings.TrimSpace(string(z.Text())))
		}
	}
}

func (c *htmlComments) Run(_ context.Context) error {
	for _, comment := range c.comments {
		match := sensitiveComment.FindString(comment)
		if match == "" {
			continue
		}
		evidence := comment
		if len(evidence) > maxEvidence {
			evidence = evidence[:maxEvidence] + "..."
		}
		c.rep.Report(model.Vulnerability{
			Name:        "Sensitive HTML Comment",
			Description: "An HTML comment mentions " + strings.ToLower(match) + " and is visible to every visitor.",
			Severity:    model.SeverityLow,
			Element:     model.ElementBody,
			Evidence:    evidence,
			Remedy:      "Strip comments from production templates.",
		})
	}
	return nil
}

// Cleanup drops the collected comments.
func (c *htmlComments) Cleanup(_ context.Context) error {
	c.comments = nil
	return nil
}
