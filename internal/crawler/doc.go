// Package crawler discovers the pages of a web application and extracts
// their structure.
//
// # Components
//
//   - Spider: breadth-first crawler that hands every HTML page to a callback
//   - Analyzer: goquery-based extraction of links, forms, cookies,
//     comments and e-mail addresses
//   - RobotsAgent: cached robots.txt evaluation
//
// # Politeness
//
// The spider waits on a token bucket limiter between requests, never
// leaves the start host, and can honor robots.txt. Ignore and follow
// patterns restrict the crawl to parts of a site.
//
// # Usage
//
//	spider := crawler.NewSpider(client, "https://example.com/", crawler.WithMaxDepth(3))
//	err := spider.Crawl(ctx, func(url, html string, headers http.Header) bool {
//	    structure := analyzer.Analyze(url, html, headers)
//	    ...
//	    return true // keep crawling
//	})
package crawler
