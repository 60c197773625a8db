package crawler

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/webaudit/internal/model"
)

// HTML element name constants for form field detection.
const (
	htmlElementInput    = "input"
	htmlElementSelect   = "select"
	htmlElementTextarea = "textarea"
)

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Analyzer extracts a page's structure: title, links with their query
// variables, forms, cookies set by the response, comments and e-mail
// addresses. It keeps no state and is safe for concurrent use.
type Analyzer struct{}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze builds the structure of one page. Malformed HTML yields
// whatever could be extracted; it never fails.
func (a *Analyzer) Analyze(pageURL, body string, headers http.Header) *model.Structure {
	s := &model.Structure{
		Links:    make([]model.Link, 0),
		Forms:    make([]model.Form, 0),
		Comments: make([]string, 0),
		Emails:   make([]string, 0),
	}
	if headers != nil {
		s.Cookies = (&http.Response{Header: headers}).Cookies()
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return s
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(b)
		}
	}

	s.Title = strings.TrimSpace(doc.Find("title").First().Text())

	seen := make(map[string]bool)
	doc.Find("a[href], area[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		resolved := resolveURL(base, href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		s.Links = append(s.Links, model.Link{URL: resolved, Vars: model.LinkVars(resolved)})
	})

	doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		s.Forms = append(s.Forms, extractForm(base, sel))
	})

	var text strings.Builder
	text.WriteString(doc.Text())
	for _, n := range doc.Nodes {
		collectComments(n, &s.Comments)
	}
	for _, c := range s.Comments {
		text.WriteString(" ")
		text.WriteString(c)
	}
	s.Emails = extractEmails(text.String())

	return s
}

// extractForm reads a form's action, method and named fields.
func extractForm(base *url.URL, sel *goquery.Selection) model.Form {
	action, _ := sel.Attr("action")
	form := model.Form{
		Action: base.String(),
		Method: strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", ""))),
		Fields: make([]model.FormField, 0),
	}
	if resolved := resolveURL(base, action); resolved != "" {
		form.Action = resolved
	}
	if form.Method == "" {
		form.Method = http.MethodGet
	}

	sel.Find(strings.Join([]string{htmlElementInput, htmlElementSelect, htmlElementTextarea}, ", ")).
		Each(func(_ int, field *goquery.Selection) {
			name := field.AttrOr("name", "")
			if name == "" {
				return
			}
			element := goquery.NodeName(field)
			typ := strings.ToLower(field.AttrOr("type", ""))
			if typ == "" {
				switch element {
				case htmlElementTextarea, htmlElementSelect:
					typ = element
				default:
					typ = "text"
				}
			}
			value := field.AttrOr("value", "")
			if element == htmlElementTextarea {
				value = field.Text()
			}
			form.Fields = append(form.Fields, model.FormField{Name: name, Type: typ, Value: value})
		})

	return form
}

// collectComments appends the text of every comment below n.
func collectComments(n *html.Node, out *[]string) {
	if n.Type == html.CommentNode {
		*out = append(*out, strings.TrimSpace(n.Data))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectComments(c, out)
	}
}

// extractEmails returns the lower-cased unique addresses in text.
func extractEmails(text string) []string {
	seen := make(map[string]bool)
	unique := make([]string, 0)
	for _, email := range emailRegex.FindAllString(text, -1) {
		lower := strings.ToLower(email)
		if !seen[lower] {
			seen[lower] = true
			unique = append(unique, lower)
		}
	}
	return unique
}
