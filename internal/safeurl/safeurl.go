// Package safeurl validates and redacts the provider gateway URLs taken from config.
package safeurl

import (
	"fmt"
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// Gateway checks that u is an absolute http(s) URL with a host and returns it
// without a trailing slash. name is used in the error.
func Gateway(name, u string) (string, error) {
	u = strings.TrimSpace(u)
	if u == "" {
		return "", fmt.Errorf("%s: not set", name)
	}
	if !IsHTTPOrHTTPS(u) {
		return "", fmt.Errorf("%s: %q is not an http(s) URL", name, RedactURL(u))
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%s: %q has no host", name, RedactURL(u))
	}
	return strings.TrimRight(u, "/"), nil
}

// RedactURL drops userinfo and the query string so URLs can be logged.
func RedactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<invalid url>"
	}
	parsed.User = nil
	if parsed.RawQuery != "" {
		parsed.RawQuery = "redacted"
	}
	parsed.Fragment = ""
	return parsed.String()
}
