package prosite

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/romangod6/pro-sitemaps-connect/internal/models"
)

// APIResponse is the JSON envelope of every API reply.
type APIResponse struct {
	APISuccess models.Flag     `json:"api_success"`
	ResultDesc string          `json:"result_desc"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Result is the normalized outcome of one API call.
type Result struct {
	Error       string                `json:"error,omitempty"`
	RequestID   string                `json:"request_id,omitempty"`
	RequestURL  string                `json:"request_url,omitempty"`
	RequestBody url.Values            `json:"request_body,omitempty"`
	StatusCode  int                   `json:"status_code,omitempty"`
	Headers     http.Header           `json:"headers,omitempty"`
	Body        []byte                `json:"-"`
	APIBody     *APIResponse          `json:"api_body,omitempty"`
	SitemapList []models.SitemapEntry `json:"sitemap_list,omitempty"`
}

func (r *Result) Failed() bool {
	return r.Error != ""
}

func (r *Result) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

func (r *Result) IsJSON() bool {
	return strings.Contains(strings.ToLower(r.ContentType()), "json")
}

// IsXML matches application/xml, text/xml and +xml types.
func (r *Result) IsXML() bool {
	ct := strings.ToLower(r.ContentType())
	return strings.Contains(ct, "/xml") || strings.Contains(ct, "+xml")
}

// ResultDesc returns the API description, if the body was JSON.
func (r *Result) ResultDesc() string {
	if r.APIBody == nil {
		return ""
	}
	return r.APIBody.ResultDesc
}
