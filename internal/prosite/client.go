// Package prosite talks to the PRO Sitemaps API.
package prosite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/romangod6/pro-sitemaps-connect/internal/models"
	"github.com/romangod6/pro-sitemaps-connect/internal/rewrite"
	"github.com/romangod6/pro-sitemaps-connect/internal/utils"
)

const (
	DefaultEndpoint = "https://pro-sitemaps.com/api/"
	DefaultVersion  = "20230928"
)

// API methods.
const (
	MethodGetSitemap      = "get_sitemap"
	MethodDownloadSitemap = "download_sitemap"
	MethodUpdateSitemap   = "update_sitemap"
)

// ErrNotConfigured is reported when API key or site id is missing.
var ErrNotConfigured = errors.New("PRO Sitemaps API settings not defined")

// loggedBodyLimit caps how much of an unexpected response body is logged.
const loggedBodyLimit = 512

type Config struct {
	Endpoint   string
	Version    string
	HomeURL    string
	Permalinks bool
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *utils.Logger
}

type Client struct {
	endpoint   string
	version    string
	homeURL    string
	permalinks bool
	httpClient *http.Client
	logger     *utils.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = utils.Discard()
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		version:    cfg.Version,
		homeURL:    strings.TrimRight(cfg.HomeURL, "/") + "/",
		permalinks: cfg.Permalinks,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Endpoint returns the API URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// LocalPath is the public prefix sitemaps are served under.
func (c *Client) LocalPath() string {
	if c.permalinks {
		return c.homeURL
	}
	return c.homeURL + "index.php?" + rewrite.QueryVar + "="
}

// Do posts one API request and normalizes the response. It never returns a Go
// error; every failure ends up in Result.Error.
func (c *Client) Do(ctx context.Context, opts *models.Options, method string, params map[string]string, info *RequestInfo) *Result {
	if !opts.HasAPIInfo() {
		return &Result{Error: ErrNotConfigured.Error()}
	}

	form := url.Values{}
	form.Set("method", method)
	form.Set("api_ver", c.version)
	form.Set("api_key", opts.APIKey)
	form.Set("site_id", opts.SiteID)
	form.Set("sitemap_slug", opts.SitemapName)
	form.Set("sitemap_self_path", c.LocalPath())
	for k, v := range params {
		form.Set(k, v)
	}
	info.apply(form)

	result := &Result{
		RequestID:   uuid.NewString(),
		RequestURL:  c.endpoint,
		RequestBody: form,
	}

	c.logger.LogDebug("API request %s: method=%s", result.RequestID, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.LogError("API request %s (%s) failed: %v", result.RequestID, method, err)
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read response body: %v", err)
		return result
	}

	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.Body = body

	var errs []string
	if resp.StatusCode != http.StatusOK {
		errs = append(errs, fmt.Sprintf("Error %d", resp.StatusCode))
	}

	if result.IsJSON() {
		var apiBody APIResponse
		if err := json.Unmarshal(body, &apiBody); err != nil {
			errs = append(errs, fmt.Sprintf("invalid API response: %v", err))
		} else {
			result.APIBody = &apiBody
			if !apiBody.APISuccess {
				desc := apiBody.ResultDesc
				if desc == "" {
					desc = "API request failed"
				}
				errs = append(errs, desc)
			}
		}
	} else if resp.StatusCode != http.StatusOK {
		c.logger.LogError("API request %s (%s) returned %d: %s", result.RequestID, method, resp.StatusCode, truncate(body, loggedBodyLimit))
	}

	if len(errs) > 0 {
		result.Error = strings.Join(errs, ". ")
		c.logger.LogError("API request %s (%s): %s", result.RequestID, method, result.Error)
	}

	return result
}

// GetSitemapInfo fetches sitemap details and fills Result.SitemapList.
func (c *Client) GetSitemapInfo(ctx context.Context, opts *models.Options, info *RequestInfo) *Result {
	result := c.Do(ctx, opts, MethodGetSitemap, nil, info)
	if result.Failed() {
		return result
	}
	if result.APIBody == nil {
		result.Error = fmt.Sprintf("unexpected response content type %q", result.ContentType())
		return result
	}

	var payload struct {
		TopSitemapInfo []models.SitemapEntry `json:"top_sitemap_info"`
	}
	if len(result.APIBody.Result) > 0 {
		if err := json.Unmarshal(result.APIBody.Result, &payload); err != nil {
			result.Error = fmt.Sprintf("invalid API response: %v", err)
			return result
		}
	}
	result.SitemapList = payload.TopSitemapInfo
	if result.SitemapList == nil {
		result.SitemapList = []models.SitemapEntry{}
	}
	return result
}

// DownloadSitemap fetches the contents of one sitemap file.
func (c *Client) DownloadSitemap(ctx context.Context, opts *models.Options, sitemapID string, info *RequestInfo) *Result {
	return c.Do(ctx, opts, MethodDownloadSitemap, map[string]string{"sitemap_id": sitemapID}, info)
}

// UpdateSitemap asks the service to regenerate the sitemap.
func (c *Client) UpdateSitemap(ctx context.Context, opts *models.Options) *Result {
	return c.Do(ctx, opts, MethodUpdateSitemap, nil, nil)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
