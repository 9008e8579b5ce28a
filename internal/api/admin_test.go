package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/romangod6/pro-sitemaps-connect/internal/models"
	"github.com/romangod6/pro-sitemaps-connect/internal/settings"
	"github.com/romangod6/pro-sitemaps-connect/internal/verify"
)

func TestUpdateSettings_AppendsExtension(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configureAPI(t)

	rec := env.send(http.MethodPut, "/api/settings", `{"ps_sitemap_name":"custom-map"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp settingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Options.SitemapName != "custom-map.xml" {
		t.Fatalf("expected custom-map.xml, got %q", resp.Options.SitemapName)
	}
	if resp.SitemapURL != "https://example.com/custom-map.xml" {
		t.Fatalf("unexpected sitemap URL %q", resp.SitemapURL)
	}
	if resp.Options.APIKey != "secret-key" {
		t.Fatalf("untouched fields must be kept")
	}

	// rewrite rule follows the new name
	if rec := env.get("/custom-map.xml"); rec.Code != http.StatusOK {
		t.Fatalf("expected new sitemap path to be served, got %d", rec.Code)
	}
	if env.remote.Field("sitemap_slug") != "custom-map.xml" {
		t.Fatalf("unexpected slug %q", env.remote.Field("sitemap_slug"))
	}
	if rec := env.get("/pro-sitemaps.xml"); rec.Code != http.StatusNotFound {
		t.Fatalf("old sitemap path should no longer match, got %d", rec.Code)
	}
}

func TestUpdateSettings_Invalid(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.send(http.MethodPut, "/api/settings", `{"ps_siteid":"abc"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric site id, got %d", rec.Code)
	}
	if rec := env.send(http.MethodPut, "/api/settings", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad payload, got %d", rec.Code)
	}
}

func TestTestConnection_CachesSitemaps(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.send(http.MethodPost, "/api/settings/test", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without API settings, got %d", rec.Code)
	}

	env.configureAPI(t)
	rec := env.send(http.MethodPost, "/api/settings/test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var test ConnectionTest
	if err := json.Unmarshal(rec.Body.Bytes(), &test); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !test.Success || test.AccountURL != "https://pro-sitemaps.com/site/321/" {
		t.Fatalf("unexpected test result %+v", test)
	}
	if len(test.Submit) != 1 || test.Submit[0] != "https://example.com/pro-sitemaps.xml" {
		t.Fatalf("unexpected submit list %v", test.Submit)
	}

	rec = env.get("/api/sitemaps")
	var list []models.SitemapEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected cached list of 2, got %d", len(list))
	}
}

func TestTestConnection_Failure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configureAPI(t)
	env.remote.respond(func(w http.ResponseWriter, method string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"api_success":false,"result_desc":"bad key"}`))
	})

	rec := env.send(http.MethodPost, "/api/settings/test", "")
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), `"error":"Error 401. bad key"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestSettingsPage_WithoutAPIInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/admin/settings")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	if doc.Find("#ps_test").Length() != 0 {
		t.Fatalf("connection test must not run without API settings")
	}
	if doc.Find("#ps_apikey_help").Length() != 1 {
		t.Fatalf("expected API key instructions")
	}
	if !strings.Contains(doc.Find("#ps_robots_notices").Text(), "not available until correct API options") {
		t.Fatalf("missing robots notice")
	}
	if v, _ := doc.Find("#ps_sitemap_name").Attr("value"); v != models.DefaultSitemapName {
		t.Fatalf("unexpected sitemap name field %q", v)
	}
	if env.remote.Calls() != 0 {
		t.Fatalf("no API call expected")
	}
}

func TestSettingsPage_ConnectionSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configureAPI(t)

	rec := env.get("/admin/settings?settings-updated=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}

	if doc.Find("#ps_updated").Length() != 1 {
		t.Fatalf("expected saved notice")
	}
	if got := strings.TrimSpace(doc.Find("#ps_test .ps_result").Text()); got != "Success!" {
		t.Fatalf("unexpected test result %q", got)
	}
	if href, _ := doc.Find("#ps_account").Attr("href"); href != "https://pro-sitemaps.com/site/321/" {
		t.Fatalf("unexpected account link %q", href)
	}
	if n := doc.Find("#ps_submit li").Length(); n != 1 {
		t.Fatalf("expected one sitemap to submit, got %d", n)
	}
	if n := doc.Find("tr.ps_sitemap").Length(); n != 2 {
		t.Fatalf("expected two sitemap rows, got %d", n)
	}
	domains := doc.Find("tr.ps_domains td")
	if domains.Eq(0).Text() != "https://example.com/" || domains.Eq(1).Text() != "https://pro-sitemaps.com/download/example.com/" {
		t.Fatalf("unexpected domain row %q / %q", domains.Eq(0).Text(), domains.Eq(1).Text())
	}
	if first := doc.Find("tr.ps_sitemap td a").First().Text(); first != "pro-sitemaps.xml" {
		t.Fatalf("unexpected first sitemap link %q", first)
	}
	if !strings.Contains(doc.Find(".ps_debug").Text(), "get_sitemap") {
		t.Fatalf("debug dump should include the request")
	}

	// the test run caches the list
	opts, err := env.settings.Load(context.Background())
	if err != nil || len(opts.SitemapList) != 2 {
		t.Fatalf("expected cached list, got %v (%v)", opts.SitemapList, err)
	}
}

func TestSettingsPage_ConnectionError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configureAPI(t)
	env.remote.respond(func(w http.ResponseWriter, method string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"api_success":false,"result_desc":"bad key"}`))
	})

	rec := env.get("/admin/settings")
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	if got := doc.Find("#ps_test .ps_result").Text(); got != "Error: bad key" {
		t.Fatalf("unexpected error text %q", got)
	}
}

func TestSaveSettingsForm(t *testing.T) {
	env := newTestEnv(t, nil)

	form := url.Values{
		settings.FieldSiteID:                            {"55"},
		settings.FieldAPIKey:                            {"form-key"},
		settings.FieldSitemapName:                       {"site-map"},
		settings.SetMarker(settings.FieldRobotsTxt):     {"1"},
		settings.SetMarker(settings.FieldUpdateSitemap): {"1"},
		settings.FieldUpdateSitemap:                     {"1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/admin/settings?settings-updated=true" {
		t.Fatalf("unexpected redirect %q", loc)
	}

	opts, err := env.settings.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts.SiteID != "55" || opts.APIKey != "form-key" || opts.SitemapName != "site-map.xml" {
		t.Fatalf("form not applied: %+v", opts)
	}
	if opts.RobotsTxt || !opts.UpdateSitemap {
		t.Fatalf("unexpected checkbox values: robots=%v update=%v", opts.RobotsTxt, opts.UpdateSitemap)
	}
}

func TestSaveSettingsForm_Invalid(t *testing.T) {
	env := newTestEnv(t, nil)

	form := url.Values{settings.FieldSiteID: {"x1"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	if !strings.Contains(doc.Find("#ps_form_error").Text(), "must be numeric") {
		t.Fatalf("expected validation message")
	}
}

func TestVerifySitemaps(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configureAPI(t)

	local := httptest.NewServer(env.server.Handler())
	defer local.Close()

	cacheList(t, env, []models.SitemapEntry{
		{ClientURL: local.URL + "/pro-sitemaps.xml", SESubmit: true, ElementsCount: 2},
	})

	rec := env.send(http.MethodPost, "/api/sitemaps/verify", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reports []verify.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &reports); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reports) != 1 || reports[0].URLs != 2 || !reports[0].Matches {
		t.Fatalf("unexpected reports %+v", reports)
	}

	if rec := env.send(http.MethodPost, "/api/sitemaps/verify", `{"url":"https://nowhere.example/x.xml"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sitemap, got %d", rec.Code)
	}
}
