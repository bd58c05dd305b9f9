package httpclient

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func TestDecodingTransport(t *testing.T) {
	const body = `{"totalCount":1,"objects":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept-Encoding"); got != AcceptEncoding {
			t.Errorf("Accept-Encoding = %q", got)
		}
		switch r.URL.Path {
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			bw := brotli.NewWriter(w)
			io.WriteString(bw, body)
			bw.Close()
		case "/gzip":
			w.Header().Set("Content-Encoding", "gzip")
			gw := gzip.NewWriter(w)
			io.WriteString(gw, body)
			gw.Close()
		default:
			io.WriteString(w, body)
		}
	}))
	defer srv.Close()

	c := WithTimeout(5 * time.Second)
	for _, path := range []string{"/br", "/gzip", "/plain"} {
		resp, err := c.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		got, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("%s: read: %v", path, err)
		}
		if string(got) != body {
			t.Errorf("%s: body = %q", path, got)
		}
		if resp.Header.Get("Content-Encoding") != "" {
			t.Errorf("%s: Content-Encoding should be stripped", path)
		}
	}
}

func TestNewSession_keepsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			return
		}
		c, err := r.Cookie("sid")
		if err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c, err := NewSession(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/login", "/list"} {
		resp, err := c.Get(srv.URL + p)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", p, resp.StatusCode)
		}
	}
}

func TestHostLimiter(t *testing.T) {
	h := NewHostLimiter(0, 1)
	for i := 0; i < 5; i++ {
		if err := h.Wait(context.Background(), "http://gw.example/api?x=1"); err != nil {
			t.Fatalf("unpaced Wait: %v", err)
		}
	}

	slow := NewHostLimiter(0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := slow.Wait(ctx, "http://gw.example/a"); err != nil {
		t.Fatalf("first Wait uses the burst: %v", err)
	}
	cancel()
	if err := slow.Wait(ctx, "http://gw.example/b"); err == nil {
		t.Error("Wait after cancel should fail")
	}
	// Other hosts have their own budget.
	if err := slow.Wait(context.Background(), "http://other.example/"); err != nil {
		t.Errorf("other host: %v", err)
	}

	var nilLimiter *HostLimiter
	if err := nilLimiter.Wait(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("nil limiter err = %v", err)
	}
}
