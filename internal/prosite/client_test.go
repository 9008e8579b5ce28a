package prosite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/romangod6/pro-sitemaps-connect/internal/models"
)

func testOptions() *models.Options {
	opts := models.DefaultOptions()
	opts.SiteID = "1234"
	opts.APIKey = "secret"
	return opts
}

func newTestClient(endpoint string, permalinks bool) *Client {
	return NewClient(Config{
		Endpoint:   endpoint,
		HomeURL:    "https://blog.example.com",
		Permalinks: permalinks,
	})
}

func TestClient_Do_NotConfigured(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := newTestClient(server.URL, true)
	for _, opts := range []*models.Options{
		{SiteID: "1"},
		{APIKey: "k"},
		models.DefaultOptions(),
		nil,
	} {
		result := client.Do(context.Background(), opts, MethodGetSitemap, nil, nil)
		if result.Error != ErrNotConfigured.Error() {
			t.Fatalf("expected not configured error, got %q", result.Error)
		}
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no network calls, got %d", calls)
	}
}

func TestClient_Do_RequestBody(t *testing.T) {
	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"api_success":true,"result_desc":"ok","result":{}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, false)
	info := &RequestInfo{
		IfModifiedSince: "Tue, 01 Oct 2024 10:00:00 GMT",
		RemoteIP:        "203.0.113.9",
		UserAgent:       "Googlebot <b>2.1</b>\n",
	}
	result := client.Do(context.Background(), testOptions(), MethodDownloadSitemap,
		map[string]string{"sitemap_id": "pro-sitemaps.xml", "method": "override"}, info)
	if result.Failed() {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	want := map[string]string{
		"method":            "override",
		"api_ver":           DefaultVersion,
		"api_key":           "secret",
		"site_id":           "1234",
		"sitemap_slug":      "pro-sitemaps.xml",
		"sitemap_self_path": "https://blog.example.com/index.php?prositemaps-get=",
		"sitemap_id":        "pro-sitemaps.xml",
		"if_mod_since":      "Tue, 01 Oct 2024 10:00:00 GMT",
		"remote_ip":         "203.0.113.9",
		"remote_user_agent": "Googlebot 2.1",
	}
	for k, v := range want {
		if got.Get(k) != v {
			t.Errorf("field %s = %q, want %q", k, got.Get(k), v)
		}
	}
	if result.RequestURL != server.URL || result.RequestBody.Get("api_key") != "secret" {
		t.Fatalf("request details not recorded: %+v", result)
	}
}

func TestClient_Do_OmitsEmptyPassthrough(t *testing.T) {
	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"api_success":1}`))
	}))
	defer server.Close()

	result := newTestClient(server.URL, true).Do(context.Background(), testOptions(), MethodUpdateSitemap, nil, &RequestInfo{RemoteIP: "10.0.0.1"})
	if result.Failed() {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if _, ok := got["if_mod_since"]; ok {
		t.Fatalf("empty passthrough field should be omitted")
	}
	if got.Get("sitemap_self_path") != "https://blog.example.com/" {
		t.Fatalf("unexpected self path %q", got.Get("sitemap_self_path"))
	}
}

func TestClient_Do_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	result := newTestClient(endpoint, true).Do(context.Background(), testOptions(), MethodGetSitemap, nil, nil)
	if !result.Failed() {
		t.Fatalf("expected transport error")
	}
	if result.APIBody != nil || result.Headers != nil || result.Body != nil {
		t.Fatalf("transport failure must not carry a response: %+v", result)
	}
	if !strings.Contains(result.Error, endpoint) {
		t.Fatalf("expected transport message to name the endpoint, got %q", result.Error)
	}
}

func TestClient_Do_APIFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"ok status", http.StatusOK, "bad key"},
		{"forbidden", http.StatusForbidden, "Error 403. bad key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"api_success":false,"result_desc":"bad key"}`))
			}))
			defer server.Close()

			result := newTestClient(server.URL, true).Do(context.Background(), testOptions(), MethodGetSitemap, nil, nil)
			if result.Error != tt.want {
				t.Fatalf("error = %q, want %q", result.Error, tt.want)
			}
			if result.APIBody == nil || result.ResultDesc() != "bad key" {
				t.Fatalf("expected decoded api body, got %+v", result.APIBody)
			}
		})
	}
}

func TestClient_Do_NonJSONErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<h1>upstream down</h1>"))
	}))
	defer server.Close()

	result := newTestClient(server.URL, true).Do(context.Background(), testOptions(), MethodDownloadSitemap, nil, nil)
	if result.Error != "Error 502" {
		t.Fatalf("error = %q, want %q", result.Error, "Error 502")
	}
	if string(result.Body) != "<h1>upstream down</h1>" {
		t.Fatalf("body should be kept for debugging, got %q", result.Body)
	}
}

func TestClient_Do_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	result := newTestClient(server.URL, true).Do(context.Background(), testOptions(), MethodGetSitemap, nil, nil)
	if !strings.HasPrefix(result.Error, "invalid API response") {
		t.Fatalf("unexpected error %q", result.Error)
	}
}

func TestClient_Do_XMLPassthrough(t *testing.T) {
	const sitemap = `<?xml version="1.0"?><urlset><url><loc>https://blog.example.com/</loc></url></urlset>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(sitemap))
	}))
	defer server.Close()

	result := newTestClient(server.URL, true).DownloadSitemap(context.Background(), testOptions(), "pro-sitemaps.xml", nil)
	if result.Failed() {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if string(result.Body) != sitemap || !result.IsXML() || result.IsJSON() {
		t.Fatalf("unexpected passthrough result: %+v", result)
	}
	if result.APIBody != nil {
		t.Fatalf("xml body must not be decoded")
	}
}

func TestClient_GetSitemapInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("method") != MethodGetSitemap {
			t.Errorf("unexpected method %q", r.PostForm.Get("method"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"api_success":true,"result_desc":"","result":{"top_sitemap_info":[
			{"client_url":"https://blog.example.com/pro-sitemaps.xml","sitemap_url":"https://pro-sitemaps.com/x/sitemap.xml","se_submit":1,"elements_count":5},
			{"client_url":"https://blog.example.com/pro-sitemaps-images.xml","sitemap_url":"https://pro-sitemaps.com/x/images.xml","se_submit":"0","elements_count":3}
		]}}`))
	}))
	defer server.Close()

	result := newTestClient(server.URL, true).GetSitemapInfo(context.Background(), testOptions(), nil)
	if result.Failed() {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if len(result.SitemapList) != 2 {
		t.Fatalf("expected 2 sitemaps, got %d", len(result.SitemapList))
	}
	if !result.SitemapList[0].Submittable() || result.SitemapList[1].Submittable() {
		t.Fatalf("unexpected submit flags: %+v", result.SitemapList)
	}
}

func TestClient_GetSitemapInfo_NonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	result := newTestClient(server.URL, true).GetSitemapInfo(context.Background(), testOptions(), nil)
	if !strings.Contains(result.Error, "unexpected response content type") {
		t.Fatalf("unexpected error %q", result.Error)
	}
}

func TestRequestInfoFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/pro-sitemaps.xml", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	req.Header.Set("User-Agent", "bingbot")
	req.Header.Set("If-Modified-Since", "yesterday")

	info := RequestInfoFrom(req)
	if info.RemoteIP != "198.51.100.7" || info.UserAgent != "bingbot" || info.IfModifiedSince != "yesterday" {
		t.Fatalf("unexpected request info: %+v", info)
	}
}

func TestSanitizeText(t *testing.T) {
	if got := sanitizeText("  a\tb\n<script>x</script>c  "); got != "a b xc" {
		t.Fatalf("sanitizeText = %q", got)
	}
}
