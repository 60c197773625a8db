package config

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// httpOnlyPrefix marks HttpOnly cookies in curl-style jars.
const httpOnlyPrefix = "#HttpOnly_"

// LoadCookieJar reads a Netscape cookie-jar file.
// A missing or unreadable file yields ErrCookieJarNotFound.
func LoadCookieJar(path string) ([]*http.Cookie, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided cookie jar path is intentional
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCookieJarNotFound, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCookieJarNotFound, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrCookieJarNotFound, path)
	}

	cookies, err := ParseCookieJar(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cookies, nil
}

// ParseCookieJar parses cookies in the Netscape format written by
// browsers and curl:
//
//	domain  include_subdomains  path  secure  expires  name  value
//
// Blank lines and comments are skipped. Lines prefixed with #HttpOnly_
// are cookies with the HttpOnly attribute.
func ParseCookieJar(r io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) == 6 {
			// Empty value with the trailing tab trimmed by an editor.
			fields = append(fields, "")
		}
		if len(fields) != 7 {
			return nil, fmt.Errorf("%w: line %d: expected 7 tab-separated fields, got %d",
				ErrInvalidCookieJar, lineNo, len(fields))
		}

		cookie := &http.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}

		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad expiry %q", ErrInvalidCookieJar, lineNo, fields[4])
		}
		if expires > 0 {
			cookie.Expires = time.Unix(expires, 0).UTC()
		}

		cookies = append(cookies, cookie)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cookies, nil
}
