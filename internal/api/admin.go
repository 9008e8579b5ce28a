package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/romangod6/pro-sitemaps-connect/internal/models"
	"github.com/romangod6/pro-sitemaps-connect/internal/prosite"
	"github.com/romangod6/pro-sitemaps-connect/internal/robots"
	"github.com/romangod6/pro-sitemaps-connect/internal/settings"
	"github.com/romangod6/pro-sitemaps-connect/internal/verify"
)

const accountURLFormat = "https://pro-sitemaps.com/site/%s/"

// debugBodyLimit caps how much of the raw API body the debug dump shows.
const debugBodyLimit = 4096

var templateFuncs = template.FuncMap{
	"urlDir":  urlDir,
	"urlBase": urlBase,
}

type settingsResponse struct {
	Options    *models.Options `json:"options"`
	HasAPIInfo bool            `json:"has_api_info"`
	LocalPath  string          `json:"local_path"`
	SitemapURL string          `json:"sitemap_url"`
	Pattern    string          `json:"rewrite_pattern,omitempty"`
}

// ConnectionTest is the outcome of a get_sitemap call made from the admin surface.
type ConnectionTest struct {
	Success    bool                  `json:"success"`
	Error      string                `json:"error,omitempty"`
	AccountURL string                `json:"account_url,omitempty"`
	Sitemaps   []models.SitemapEntry `json:"sitemaps"`
	Submit     []string              `json:"submit"`
	Result     *prosite.Result       `json:"debug"`
}

// Debug renders the request and response for the settings page.
func (t *ConnectionTest) Debug() string {
	if t.Result == nil {
		return ""
	}
	dump, err := json.MarshalIndent(t.Result, "", "  ")
	if err != nil {
		return err.Error()
	}
	out := string(dump)
	if len(t.Result.Body) > 0 {
		body := t.Result.Body
		if len(body) > debugBodyLimit {
			body = body[:debugBodyLimit]
		}
		out += "\n\nbody:\n" + string(body)
	}
	return out
}

func (h *Handler) describe(opts *models.Options) settingsResponse {
	resp := settingsResponse{
		Options:    opts,
		HasAPIInfo: opts.HasAPIInfo(),
		LocalPath:  h.client.LocalPath(),
		SitemapURL: h.client.LocalPath() + opts.SitemapName,
	}
	if rule := h.rules.Current(); rule != nil {
		resp.Pattern = rule.Pattern()
	}
	return resp
}

func (h *Handler) GetSettings(c *gin.Context) {
	opts, err := h.settings.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, h.describe(opts))
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var update settings.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid settings payload"})
		return
	}

	opts, err := h.settings.Update(c.Request.Context(), update)
	if err != nil {
		var verr *settings.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to save settings"})
		return
	}
	c.JSON(http.StatusOK, h.describe(opts))
}

// testConnection calls get_sitemap and caches the returned list when it is not empty.
func (h *Handler) testConnection(ctx context.Context, opts *models.Options, info *prosite.RequestInfo) *ConnectionTest {
	result := h.client.GetSitemapInfo(ctx, opts, info)
	test := &ConnectionTest{Result: result, Sitemaps: []models.SitemapEntry{}, Submit: []string{}}
	if result.Failed() {
		test.Error = result.Error
		return test
	}

	test.Success = true
	test.AccountURL = fmt.Sprintf(accountURLFormat, opts.SiteID)
	test.Sitemaps = result.SitemapList
	for _, entry := range result.SitemapList {
		if entry.Submittable() {
			test.Submit = append(test.Submit, entry.ClientURL)
		}
	}

	if len(result.SitemapList) > 0 {
		if err := h.settings.CacheSitemaps(ctx, result.SitemapList); err != nil {
			h.logger.LogError("Failed to cache sitemap list: %v", err)
		} else {
			opts.SitemapList = result.SitemapList
		}
	}
	return test
}

func (h *Handler) TestConnection(c *gin.Context) {
	opts, err := h.settings.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load settings"})
		return
	}
	if !opts.HasAPIInfo() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: prosite.ErrNotConfigured.Error()})
		return
	}

	test := h.testConnection(c.Request.Context(), opts, prosite.RequestInfoFrom(c.Request))
	status := http.StatusOK
	if !test.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, test)
}

func (h *Handler) ListSitemaps(c *gin.Context) {
	opts, err := h.settings.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, opts.SitemapList)
}

type robotsEntriesResponse struct {
	Entries      []string `json:"entries"`
	PhysicalFile bool     `json:"physical_file"`
	Missing      []string `json:"missing,omitempty"`
}

func (h *Handler) robotsEntries(opts *models.Options) (robotsEntriesResponse, error) {
	resp := robotsEntriesResponse{Entries: []string{}}
	for _, line := range strings.Split(robots.Entries(opts.SitemapList), "\n") {
		if line != "" {
			resp.Entries = append(resp.Entries, line)
		}
	}

	content, found, err := h.site.RobotsFile.Read()
	if err != nil {
		return resp, err
	}
	if found {
		resp.PhysicalFile = true
		resp.Missing, err = robots.Missing(content, opts.SitemapList)
		if err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (h *Handler) RobotsEntries(c *gin.Context) {
	opts, err := h.settings.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load settings"})
		return
	}
	resp, err := h.robotsEntries(opts)
	if err != nil {
		h.logger.LogError("%v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to inspect robots.txt"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type verifyRequest struct {
	URL string `json:"url"`
}

// VerifySitemaps fetches the cached sitemaps (or one given URL) through the
// public site and compares element counts.
func (h *Handler) VerifySitemaps(c *gin.Context) {
	var req verifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid verify payload"})
			return
		}
	}

	opts, err := h.settings.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load settings"})
		return
	}

	var targets []models.SitemapEntry
	for _, entry := range opts.SitemapList {
		if req.URL == "" || entry.ClientURL == req.URL {
			targets = append(targets, entry)
		}
	}
	if len(targets) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No matching sitemaps cached"})
		return
	}

	reports := make([]*verify.Report, 0, len(targets))
	for _, entry := range targets {
		report, err := h.verifier.Verify(c.Request.Context(), entry.ClientURL, entry.ElementsCount)
		if report == nil {
			report = &verify.Report{URL: entry.ClientURL, Expected: entry.ElementsCount, Error: err.Error()}
		}
		reports = append(reports, report)
	}
	c.JSON(http.StatusOK, reports)
}

type fieldNotice struct {
	Robots        []string
	UpdateSitemap []string
}

type settingsPage struct {
	Title       string
	Updated     bool
	Error       string
	Options     *models.Options
	HasAPIInfo  bool
	LocalPath   string
	HomeURL     string
	Test        *ConnectionTest
	Notices     fieldNotice
	Fields      map[string]string
	Markers     map[string]string
	RobotsLines []string
}

func (h *Handler) renderSettings(c *gin.Context, status int, opts *models.Options, page settingsPage) {
	page.Title = "PRO Sitemaps Plugin Settings"
	page.Options = opts
	page.HasAPIInfo = opts.HasAPIInfo()
	page.LocalPath = h.client.LocalPath()
	page.HomeURL = strings.TrimRight(h.site.HomeURL, "/") + "/"
	page.Fields = map[string]string{
		"SiteID":        settings.FieldSiteID,
		"APIKey":        settings.FieldAPIKey,
		"SitemapName":   settings.FieldSitemapName,
		"RobotsTxt":     settings.FieldRobotsTxt,
		"UpdateSitemap": settings.FieldUpdateSitemap,
	}
	page.Markers = map[string]string{
		"SiteID":        settings.SetMarker(settings.FieldSiteID),
		"APIKey":        settings.SetMarker(settings.FieldAPIKey),
		"SitemapName":   settings.SetMarker(settings.FieldSitemapName),
		"RobotsTxt":     settings.SetMarker(settings.FieldRobotsTxt),
		"UpdateSitemap": settings.SetMarker(settings.FieldUpdateSitemap),
	}

	if !page.HasAPIInfo {
		page.Notices.Robots = append(page.Notices.Robots, "Note: This feature is not available until correct API options above are provided")
	}
	if entries, err := h.robotsEntries(opts); err != nil {
		h.logger.LogError("%v", err)
	} else if entries.PhysicalFile {
		page.Notices.Robots = append(page.Notices.Robots, "Note: This feature is not available while a physical robots.txt file exists in the site folder")
		for _, u := range entries.Missing {
			page.RobotsLines = append(page.RobotsLines, "sitemap: "+u)
		}
	}
	page.Notices.UpdateSitemap = append(page.Notices.UpdateSitemap, "Note: This API method is only available for upgraded PRO Sitemaps accounts")

	c.HTML(status, "settings.html", page)
}

// SettingsPage renders the settings form, running a connection test first
// when API settings are present.
func (h *Handler) SettingsPage(c *gin.Context) {
	ctx := c.Request.Context()
	opts, err := h.settings.Load(ctx)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to load settings")
		return
	}

	page := settingsPage{Updated: c.Query("settings-updated") != ""}
	if opts.HasAPIInfo() {
		page.Test = h.testConnection(ctx, opts, prosite.RequestInfoFrom(c.Request))
	}
	h.renderSettings(c, http.StatusOK, opts, page)
}

func (h *Handler) SaveSettingsForm(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "invalid form")
		return
	}

	update := settings.UpdateFromForm(c.Request.PostForm)
	opts, err := h.settings.Update(c.Request.Context(), update)
	if err != nil {
		var verr *settings.ValidationError
		if !errors.As(err, &verr) {
			h.logger.LogError("Failed to save settings: %v", err)
			c.String(http.StatusInternalServerError, "failed to save settings")
			return
		}
		current, loadErr := h.settings.Load(c.Request.Context())
		if loadErr != nil {
			c.String(http.StatusInternalServerError, "failed to load settings")
			return
		}
		h.renderSettings(c, http.StatusBadRequest, settings.Apply(current, update), settingsPage{Error: verr.Error()})
		return
	}

	h.logger.LogInfo("Settings saved, sitemap served at %s%s", h.client.LocalPath(), opts.SitemapName)
	c.Redirect(http.StatusSeeOther, "/admin/settings?settings-updated=true")
}

// urlDir returns everything before the last slash of a URL.
func urlDir(u string) string {
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[:i]
	}
	return u
}

// urlBase returns everything after the last slash of a URL.
func urlBase(u string) string {
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
