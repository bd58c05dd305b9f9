// Package provider talks to the OTT gateways: the phoenix REST gateway for
// asset lists and product prices, and the JSON-post gateway for EPG batches.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/snapetech/vodka-export/internal/httpclient"
)

const (
	DefaultAPIVersion = "5.2"
	DefaultPlatform   = "Kaltura"
	// LiveChannelType and LiveChannelListID select the live channel list.
	LiveChannelType   = "519"
	LiveChannelListID = 100347432
)

// Locale is the initObj locale block.
type Locale struct {
	Language  string `json:"LocaleLanguage"`
	Country   string `json:"LocaleCountry"`
	Device    string `json:"LocaleDevice"`
	UserState string `json:"LocaleUserState"`
}

// InitObj identifies the device session on the JSON-post gateway.
type InitObj struct {
	APIUser  string `json:"ApiUser"`
	APIPass  string `json:"ApiPass"`
	DomainID string `json:"DomainID"`
	SiteGUID string `json:"SiteGUID"`
	Locale   Locale `json:"Locale"`
	Platform string `json:"Platform"`
	UDID     string `json:"UDID"`
	Token    string `json:"Token,omitempty"`
}

// DefaultLocale matches the Hungarian web client.
func DefaultLocale() Locale {
	return Locale{Language: "hu", Country: "null", Device: "null", UserState: "Unknown"}
}

// Client is a provider session. All calls are sequential POSTs with JSON bodies.
type Client struct {
	PhoenixURL  string
	JSONPostURL string
	KS          string
	Init        InitObj
	APIVersion  string
	// Platform prefixes objectType names (e.g. "<Platform>FilterPager").
	Platform  string
	UserAgent string

	HTTP    *http.Client
	Limiter *httpclient.HostLimiter
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider: %s returned HTTP %d", e.URL, e.Code)
}

// APIError is an error object embedded in a 200 response.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: api error %s: %s", e.Code, e.Message)
}

func (c *Client) apiVersion() string {
	if c.APIVersion == "" {
		return DefaultAPIVersion
	}
	return c.APIVersion
}

func (c *Client) objectType(name string) string {
	p := c.Platform
	if p == "" {
		p = DefaultPlatform
	}
	return p + name
}

func (c *Client) post(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := c.Limiter.Wait(ctx, url); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	client := c.HTTP
	if client == nil {
		client = httpclient.Default()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

type apiErrorBody struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

func (b *apiErrorBody) err() error {
	if b == nil {
		return nil
	}
	return &APIError{Code: strings.Trim(string(b.Code), `"`), Message: b.Message}
}

// Page is one page of the asset list.
type Page struct {
	Objects []json.RawMessage
	Total   int
}

// ChannelPage fetches page pageIndex (1-based) of the live channel list.
func (c *Client) ChannelPage(ctx context.Context, pageIndex, pageSize int) (Page, error) {
	payload := map[string]any{
		"ks": c.KS,
		"filter": map[string]any{
			"kSql":       fmt.Sprintf("(and asset_type='%s')", LiveChannelType),
			"idEqual":    LiveChannelListID,
			"objectType": c.objectType("ChannelFilter"),
		},
		"pager": map[string]any{
			"objectType": c.objectType("FilterPager"),
			"pageSize":   pageSize,
			"pageIndex":  pageIndex,
		},
		"responseProfile": map[string]any{
			"objectType": c.objectType("DetachedResponseProfile"),
			"name":       c.objectType("AssetImagePerRatioFilter"),
			"filter": map[string]any{
				"objectType": c.objectType("AssetImagePerRatioFilter"),
			},
		},
		"apiVersion": c.apiVersion(),
	}
	body, err := c.post(ctx, strings.TrimRight(c.PhoenixURL, "/")+"/asset/action/list", payload)
	if err != nil {
		return Page{}, fmt.Errorf("asset list page %d: %w", pageIndex, err)
	}
	var out struct {
		Result struct {
			TotalCount int               `json:"totalCount"`
			Objects    []json.RawMessage `json:"objects"`
			Error      *apiErrorBody     `json:"error"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Page{}, fmt.Errorf("asset list page %d: decode: %w", pageIndex, err)
	}
	if err := out.Result.Error.err(); err != nil {
		return Page{}, fmt.Errorf("asset list page %d: %w", pageIndex, err)
	}
	if out.Result.TotalCount == 0 {
		return Page{}, nil
	}
	return Page{Objects: out.Result.Objects, Total: out.Result.TotalCount}, nil
}

// Price is the purchase state of one media file.
type Price struct {
	FileID         string
	PurchaseStatus string
}

// ProductPrices fetches the purchase state of fileIDs in one request.
func (c *Client) ProductPrices(ctx context.Context, fileIDs []string) ([]Price, error) {
	payload := map[string]any{
		"ks": c.KS,
		"filter": map[string]any{
			"fileIdIn": strings.Join(fileIDs, ","),
			"IsLowest": false,
		},
		"apiVersion": c.apiVersion(),
	}
	body, err := c.post(ctx, strings.TrimRight(c.PhoenixURL, "/")+"/productprice/action/list", payload)
	if err != nil {
		return nil, fmt.Errorf("product price list: %w", err)
	}
	var out struct {
		Result struct {
			Objects []struct {
				FileID         json.RawMessage `json:"fileId"`
				PurchaseStatus string          `json:"purchaseStatus"`
			} `json:"objects"`
			Error *apiErrorBody `json:"error"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("product price list: decode: %w", err)
	}
	if err := out.Result.Error.err(); err != nil {
		return nil, fmt.Errorf("product price list: %w", err)
	}
	prices := make([]Price, 0, len(out.Result.Objects))
	for _, o := range out.Result.Objects {
		id := strings.Trim(strings.TrimSpace(string(o.FileID)), `"`)
		if id == "" || id == "null" {
			continue
		}
		prices = append(prices, Price{FileID: id, PurchaseStatus: o.PurchaseStatus})
	}
	return prices, nil
}

// EPGWindow is a day-offset range relative to today, in the given UTC offset.
type EPGWindow struct {
	FromDays       int
	ToDays         int
	UTCOffsetHours int
}

// EPGMultiChannel fetches the programme guide for epgIDs and returns the raw
// JSON array; decoding is left to the caller so schema errors stay typed.
func (c *Client) EPGMultiChannel(ctx context.Context, epgIDs []string, w EPGWindow) ([]byte, error) {
	payload := map[string]any{
		"initObj":       c.Init,
		"iFromOffset":   w.FromDays,
		"iToOffset":     w.ToDays,
		"iUtcOffset":    w.UTCOffsetHours,
		"oUnit":         "Days",
		"sEPGChannelID": epgIDs,
		"sPicSize":      "full",
	}
	body, err := c.post(ctx, c.JSONPostURL+"?m=GetEPGMultiChannelProgram", payload)
	if err != nil {
		return nil, fmt.Errorf("epg multi channel (%d ids): %w", len(epgIDs), err)
	}
	return body, nil
}
