// Package httpclient builds the HTTP client shared by the spider and the
// robots.txt agent.
//
// The client keeps a public-suffix aware cookie jar, seeded with the
// cookies from the scan's cookie jar file, so that authenticated areas of
// a site can be crawled. Traffic can be routed through a SOCKS5 proxy,
// including an embedded Tor daemon started with EmbeddedTor.
package httpclient
