// Package main provides the entry point for the webaudit CLI.
//
// webaudit crawls a web application and runs a set of check modules
// against every page it discovers.
//
// Usage:
//
//	webaudit scan --links --forms -m '*' https://example.com
//	webaudit modules
//	webaudit history
//
// See --help for all available options.
package main

// main is the entry point for webaudit.
func main() {
	Execute()
}
