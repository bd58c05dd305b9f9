package httpclient

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 4
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: NewDecodingTransport(newTransport()),
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		// Compression is negotiated by DecodingTransport.
		DisableCompression: true,
	}
}

// Default returns the shared tuned HTTP client for provider and health checks.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and a fresh decoding transport.
func WithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewDecodingTransport(newTransport()),
	}
}

// NewSession returns a client that keeps provider cookies between requests.
// The jar scopes cookies by public suffix so a gateway cannot set cookies for
// a whole TLD.
func NewSession(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	c := WithTimeout(timeout)
	c.Jar = jar
	return c, nil
}
