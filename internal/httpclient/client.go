package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// Defaults for New.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRedirects = 10

	// checkProxyTimeout bounds the SOCKS5 handshake in CheckProxy.
	checkProxyTimeout = 2 * time.Second
)

type options struct {
	timeout      time.Duration
	proxyAddr    string
	insecureTLS  bool
	maxRedirects int
	seedURL      *url.URL
	cookies      []*http.Cookie
}

// Option configures New.
type Option func(*options)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithSOCKS5 routes every connection through the SOCKS5 proxy at addr.
func WithSOCKS5(addr string) Option {
	return func(o *options) {
		o.proxyAddr = addr
	}
}

// WithInsecureTLS disables certificate verification. Useful against
// staging hosts with self-signed certificates.
func WithInsecureTLS(insecure bool) Option {
	return func(o *options) {
		o.insecureTLS = insecure
	}
}

// WithMaxRedirects sets how many redirects are followed.
func WithMaxRedirects(n int) Option {
	return func(o *options) {
		o.maxRedirects = n
	}
}

// WithCookies seeds the jar with cookies for target. Cookies without a
// domain apply to target's host.
func WithCookies(target *url.URL, cookies []*http.Cookie) Option {
	return func(o *options) {
		o.seedURL = target
		o.cookies = cookies
	}
}

// New creates an HTTP client.
func New(opts ...Option) (*http.Client, error) {
	o := &options{
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(o)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: o.insecureTLS, //nolint:gosec // Opt-in for self-signed test hosts
		},
	}

	if o.proxyAddr != "" {
		if !isValidProxyAddress(o.proxyAddr) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, o.proxyAddr)
		}
		dialer, err := proxy.SOCKS5("tcp", o.proxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		transport.DialContext = contextDialer(dialer)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if o.seedURL != nil && len(o.cookies) > 0 {
		jar.SetCookies(o.seedURL, o.cookies)
	}

	maxRedirects := o.maxRedirects
	return &http.Client{
		Transport: transport,
		Timeout:   o.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// contextDialer adapts a proxy.Dialer to http.Transport.DialContext.
func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

// isValidProxyAddress checks that address is "host:port" with a port in
// 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// SOCKS5 protocol constants
const (
	socks5Version  = 0x05
	socks5AuthNone = 0x00
)

// CheckProxy verifies that a SOCKS5 proxy is listening at addr and accepts
// unauthenticated clients. It performs only the method negotiation, so no
// request leaves the proxy.
func CheckProxy(ctx context.Context, addr string) error {
	if !isValidProxyAddress(addr) {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, addr)
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err)
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyNotSOCKS5, err)
	}
	if resp[0] != socks5Version || resp[1] != socks5AuthNone {
		return fmt.Errorf("%w: reply %#x %#x", ErrProxyNotSOCKS5, resp[0], resp[1])
	}
	return nil
}
