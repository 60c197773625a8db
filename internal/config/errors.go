package config

import "errors"

// Configuration validation errors.
// These errors are returned by ScanConfig.Validate() in the order the
// checks run. Callers use errors.Is() to tell them apart; the wrapped
// message carries the offending value where there is one.
var (
	// ErrNoAuditTargets is returned when links, forms and cookies auditing
	// are all disabled. There would be nothing for check modules to test.
	ErrNoAuditTargets = errors.New("no audit options were specified: enable at least one of links, forms or cookies")

	// ErrNoModulesSelected is returned when the module list is empty.
	// Use "*" to select every available module.
	ErrNoModulesSelected = errors.New("no modules were specified")

	// ErrMissingURL is returned when no target URL is given.
	ErrMissingURL = errors.New("no URL specified")

	// ErrInvalidURL is returned when the target URL cannot be parsed or is
	// not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrCookieJarNotFound is returned when the cookie-jar path does not
	// point at a readable file.
	ErrCookieJarNotFound = errors.New("cookie jar not found")

	// ErrInvalidCookieJar is returned when a cookie-jar line does not have
	// the seven tab-separated Netscape fields.
	ErrInvalidCookieJar = errors.New("invalid cookie jar")
)
