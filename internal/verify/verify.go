// Package verify fetches a locally served sitemap and counts its entries.
package verify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/romangod6/pro-sitemaps-connect/internal/utils"
)

const (
	urlLocXPath     = "//*[local-name()='urlset']/*[local-name()='url']/*[local-name()='loc']"
	sitemapLocXPath = "//*[local-name()='sitemapindex']/*[local-name()='sitemap']/*[local-name()='loc']"
)

type Report struct {
	URL         string   `json:"url"`
	StatusCode  int      `json:"status_code"`
	ContentType string   `json:"content_type,omitempty"`
	URLs        int      `json:"urls"`
	Sitemaps    []string `json:"sitemaps,omitempty"`
	Expected    int      `json:"expected"`
	Matches     bool     `json:"matches"`
	Error       string   `json:"error,omitempty"`
}

type Verifier struct {
	userAgent string
	timeout   time.Duration
	logger    *utils.Logger
}

func NewVerifier(userAgent string, timeout time.Duration, logger *utils.Logger) *Verifier {
	if userAgent == "" {
		userAgent = "PRO Sitemaps Connect verifier"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Verifier{userAgent: userAgent, timeout: timeout, logger: logger}
}

// Verify fetches target and compares the number of <url> entries (or, for a
// sitemap index, of child sitemaps) with expected.
func (v *Verifier) Verify(ctx context.Context, target string, expected int) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{URL: target, Expected: expected}

	c := colly.NewCollector(
		colly.UserAgent(v.userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(v.timeout)
	c.WithTransport(&contextTransport{ctx: ctx, base: http.DefaultTransport})

	c.OnResponse(func(r *colly.Response) {
		report.StatusCode = r.StatusCode
		report.ContentType = r.Headers.Get("Content-Type")
	})

	c.OnXML(urlLocXPath, func(e *colly.XMLElement) {
		report.URLs++
	})

	c.OnXML(sitemapLocXPath, func(e *colly.XMLElement) {
		report.Sitemaps = append(report.Sitemaps, e.Text)
	})

	c.OnError(func(r *colly.Response, err error) {
		report.StatusCode = r.StatusCode
		report.Error = err.Error()
	})

	v.logger.LogDebug("Verifying sitemap %s", target)
	if err := c.Visit(target); err != nil && report.Error == "" {
		report.Error = err.Error()
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("verification of %s cancelled: %w", target, err)
	}
	if report.Error != "" {
		v.logger.LogError("Verification of %s failed: %s", target, report.Error)
		return report, fmt.Errorf("failed to fetch %s: %s", target, report.Error)
	}

	found := report.URLs
	if len(report.Sitemaps) > 0 {
		found = len(report.Sitemaps)
	}
	report.Matches = found == expected
	v.logger.LogInfo("Verified %s: %d urls, %d sitemaps (expected %d)", target, report.URLs, len(report.Sitemaps), expected)
	return report, nil
}

// contextTransport binds every collector request to the caller's context.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
