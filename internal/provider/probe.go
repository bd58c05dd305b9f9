package provider

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Target is a named gateway endpoint to probe.
type Target struct {
	Name string
	URL  string
}

// Result is the outcome of probing one gateway.
type Result struct {
	Name        string
	URL         string
	Status      Status
	StatusCode  int
	LatencyMs   int64
	BodyPreview string // first 512 bytes, kept for Cloudflare pages
}

type Status string

const (
	StatusOK         Status = "ok"
	StatusCloudflare Status = "cloudflare"
	StatusBadStatus  Status = "bad_status"
	StatusTimeout    Status = "timeout"
	StatusErr        Status = "error"
)

// ProbeOne issues a GET against the gateway and classifies the result.
// The gateways only accept POST for real calls, so any 2xx-4xx answer that is
// not a Cloudflare challenge counts as reachable.
func ProbeOne(ctx context.Context, t Target, client *http.Client) Result {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	res := Result{Name: t.Name, URL: t.URL}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		res.Status = StatusErr
		res.LatencyMs = time.Since(start).Milliseconds()
		return res
	}
	req.Header.Set("User-Agent", "vodka-export/1.0")
	resp, err := client.Do(req)
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		if strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline") {
			res.Status = StatusTimeout
		} else {
			res.Status = StatusErr
		}
		return res
	}
	defer resp.Body.Close()
	preview := make([]byte, 512)
	n, _ := resp.Body.Read(preview)
	previewStr := strings.ToLower(string(preview[:n]))
	code := resp.StatusCode
	res.StatusCode = code

	server := strings.ToLower(strings.TrimSpace(resp.Header.Get("Server")))
	isCFServer := server == "cloudflare"
	bodyHasCFChallenge := strings.Contains(previewStr, "checking your browser") ||
		strings.Contains(previewStr, "cf-bypass") ||
		strings.Contains(previewStr, "ray id")
	switch {
	case (code == 403 || code == 503 || code == 520 || code == 521 || code == 524) && (bodyHasCFChallenge || isCFServer):
		res.Status = StatusCloudflare
		res.BodyPreview = previewStr
	case isCFServer && code >= 400:
		res.Status = StatusCloudflare
	case code >= 500:
		res.Status = StatusBadStatus
	default:
		res.Status = StatusOK
	}
	return res
}

// ProbeAll probes every target with a URL and returns results sorted OK first
// (by latency), then the rest by name.
func ProbeAll(ctx context.Context, targets []Target, client *http.Client) []Result {
	out := make([]Result, 0, len(targets))
	for _, t := range targets {
		if t.URL == "" {
			continue
		}
		out = append(out, ProbeOne(ctx, t, client))
	}
	sort.SliceStable(out, func(i, j int) bool {
		okI := out[i].Status == StatusOK
		okJ := out[j].Status == StatusOK
		if okI != okJ {
			return okI
		}
		if okI {
			return out[i].LatencyMs < out[j].LatencyMs
		}
		return out[i].Name < out[j].Name
	})
	return out
}
