package model

import (
	"net/http"
	"net/url"
)

// PageRecord is a normalized snapshot of one crawled page.
// It is created once per page by the crawl driver and handed unchanged to
// every check unit dispatched against it.
//
// Design decision: PageRecord is treated as immutable after creation.
// Check units run concurrently against the same record, so none of them
// may modify it; the record carries everything a check needs so that
// checks never reach back into the crawler.
type PageRecord struct {
	// URL is the absolute URL the page was fetched from.
	URL string `json:"url"`

	// URLVars holds the query variables of URL.
	URLVars map[string]string `json:"url_vars,omitempty"`

	// HTML is the raw response body.
	HTML string `json:"-"`

	// Headers contains the HTTP response headers.
	Headers http.Header `json:"headers,omitempty"`

	// Structure is the analyzer's view of the page. The audit core passes
	// it through untouched.
	Structure *Structure `json:"structure,omitempty"`

	// Cookies are the cookies taken from the scan configuration
	// (cookie jar), not the ones the page set.
	Cookies []*http.Cookie `json:"-"`
}

// NewPageRecord builds a PageRecord, deriving URLVars from rawURL.
func NewPageRecord(rawURL, html string, headers http.Header, structure *Structure, cookies []*http.Cookie) *PageRecord {
	return &PageRecord{
		URL:       rawURL,
		URLVars:   LinkVars(rawURL),
		HTML:      html,
		Headers:   headers,
		Structure: structure,
		Cookies:   cookies,
	}
}

// Header returns the first value of the named response header.
func (p *PageRecord) Header(name string) string {
	if p.Headers == nil {
		return ""
	}
	return p.Headers.Get(name)
}

// LinkVars returns the query variables of a URL as a flat map.
// Only the first value of repeated variables is kept. Unparsable URLs
// yield an empty map.
func LinkVars(rawURL string) map[string]string {
	vars := make(map[string]string)
	u, err := url.Parse(rawURL)
	if err != nil {
		return vars
	}
	for name, values := range u.Query() {
		if len(values) > 0 {
			vars[name] = values[0]
		}
	}
	return vars
}

// Structure is what the analyzer extracted from a page.
type Structure struct {
	// Title is the text of the <title> element.
	Title string `json:"title,omitempty"`

	// Links are the anchors found on the page, resolved to absolute URLs.
	Links []Link `json:"links,omitempty"`

	// Forms are the HTML forms found on the page.
	Forms []Form `json:"forms,omitempty"`

	// Cookies are the cookies the response set via Set-Cookie.
	Cookies []*http.Cookie `json:"-"`

	// Comments contains HTML comments.
	Comments []string `json:"comments,omitempty"`

	// Emails contains e-mail addresses found in the page text.
	Emails []string `json:"emails,omitempty"`
}

// Link is an anchor with its query variables.
type Link struct {
	// URL is the absolute URL of the link.
	URL string `json:"url"`

	// Vars holds the link's query variables.
	Vars map[string]string `json:"vars,omitempty"`
}

// Form represents an HTML form element.
type Form struct {
	// Action is the resolved action URL. Empty action resolves to the page URL.
	Action string `json:"action"`

	// Method is the upper-cased HTTP method, GET when unspecified.
	Method string `json:"method"`

	// Fields contains the form's named input fields.
	Fields []FormField `json:"fields,omitempty"`
}

// FormField represents an input, select or textarea inside a form.
type FormField struct {
	// Name is the field's name attribute.
	Name string `json:"name"`

	// Type is the input type; "text" when unspecified.
	Type string `json:"type"`

	// Value is the default value if present.
	Value string `json:"value,omitempty"`
}

// HasField reports whether the form has a field with the given name.
func (f Form) HasField(name string) bool {
	for _, field := range f.Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}
