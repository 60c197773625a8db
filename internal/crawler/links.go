package crawler

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// linkAttrs lists the elements whose attribute points at another page.
var linkAttrs = map[string]string{
	"a":      "href",
	"area":   "href",
	"frame":  "src",
	"iframe": "src",
	"form":   "action",
}

// extractLinks returns the absolute, fragment-free URLs a page links to,
// in document order and without duplicates. A <base href> is honored.
func extractLinks(pageURL, body string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	links := make([]string, 0)

	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return links
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		tok := z.Token()
		if tok.Data == "base" {
			if href := attr(tok, "href"); href != "" {
				if b, err := url.Parse(strings.TrimSpace(href)); err == nil {
					base = base.ResolveReference(b)
				}
			}
			continue
		}

		key, ok := linkAttrs[tok.Data]
		if !ok {
			continue
		}
		resolved := resolveURL(base, attr(tok, key))
		if resolved == "" || seen[resolved] {
			continue
		}
		seen[resolved] = true
		links = append(links, resolved)
	}
}

// resolveURL resolves href against base. Script, mail, phone and data
// links resolve to "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
