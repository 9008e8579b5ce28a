package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/romangod6/pro-sitemaps-connect/internal/prosite"
	"github.com/romangod6/pro-sitemaps-connect/internal/rewrite"
	"github.com/romangod6/pro-sitemaps-connect/internal/robots"
	"github.com/romangod6/pro-sitemaps-connect/internal/settings"
	"github.com/romangod6/pro-sitemaps-connect/internal/updater"
	"github.com/romangod6/pro-sitemaps-connect/internal/utils"
	"github.com/romangod6/pro-sitemaps-connect/internal/verify"
)

const unavailableStatus = "503 Service Temporarily Unavailable"

// robots.txt of a site that asks not to be indexed
const privateRobots = "User-agent: *\nDisallow: /\n"

type Handler struct {
	settings *settings.Manager
	client   *prosite.Client
	rules    *rewrite.RuleSet
	queue    Submitter
	verifier *verify.Verifier
	site     Site
	basePath string
	logger   *utils.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = utils.Discard()
	}
	return &Handler{
		settings: deps.Settings,
		client:   deps.Client,
		rules:    deps.Rules,
		queue:    deps.Queue,
		verifier: deps.Verifier,
		site:     deps.Site,
		basePath: deps.Site.BasePath(),
		logger:   logger,
	}
}

// Rewrite serves paths matching the registered sitemap rule. Rules match
// relative to the path of the home URL.
func (h *Handler) Rewrite(c *gin.Context) {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		if rel, ok := strings.CutPrefix(c.Request.URL.Path, h.basePath); ok {
			if name, ok := h.rules.Match(rel); ok {
				h.ServeSitemap(c, name)
				return
			}
		}
	}
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
}

// IndexQuery serves index.php?prositemaps-get=<name>, used without pretty permalinks.
func (h *Handler) IndexQuery(c *gin.Context) {
	name := c.Query(rewrite.QueryVar)
	if name == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
		return
	}
	h.ServeSitemap(c, name)
}

// ServeSitemap proxies one sitemap file from the API. The body is written
// verbatim; anything but an XML reply ends in a 503.
func (h *Handler) ServeSitemap(c *gin.Context, name string) {
	opts, err := h.settings.Load(c.Request.Context())
	if err != nil {
		h.logger.LogError("Failed to load options: %v", err)
		h.unavailable(c, "failed to load settings")
		return
	}

	result := h.client.DownloadSitemap(c.Request.Context(), opts, name, prosite.RequestInfoFrom(c.Request))

	var errorResult string
	switch {
	case result.Failed():
		errorResult = result.Error
	case result.IsJSON():
		errorResult = "API Error. " + result.ResultDesc()
	case !result.IsXML():
		errorResult = fmt.Sprintf("unexpected content type %q", result.ContentType())
	}
	if errorResult != "" {
		h.logger.LogError("Failed to serve sitemap %s: %s", name, errorResult)
		h.unavailable(c, errorResult)
		return
	}

	c.Header("Content-Length", strconv.Itoa(len(result.Body)))
	c.Data(http.StatusOK, "application/xml", result.Body)
	c.Abort()
}

func (h *Handler) unavailable(c *gin.Context, message string) {
	c.String(http.StatusServiceUnavailable, "%s: %s", unavailableStatus, message)
	c.Abort()
}

// RobotsTxt serves the physical robots.txt when there is one, otherwise the
// generated one with sitemap entries appended.
func (h *Handler) RobotsTxt(c *gin.Context) {
	content, found, err := h.site.RobotsFile.Read()
	if err != nil {
		h.logger.LogError("%v", err)
		c.String(http.StatusInternalServerError, "failed to read robots.txt")
		return
	}
	if found {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", content)
		return
	}

	base := h.site.RobotsBase
	if !h.site.Public {
		base = privateRobots
	}

	opts, err := h.settings.Load(c.Request.Context())
	if err != nil {
		h.logger.LogError("Failed to load options: %v", err)
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(base))
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(robots.Augment(base, h.site.Public, opts)))
}

// PostTransition queues a sitemap update when a post becomes published.
func (h *Handler) PostTransition(c *gin.Context) {
	var t updater.Transition
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid transition payload"})
		return
	}

	if !updater.ShouldUpdate(t.NewStatus, t.OldStatus) {
		c.JSON(http.StatusOK, gin.H{"queued": false})
		return
	}

	opts, err := h.settings.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load settings"})
		return
	}
	if !opts.UpdateSitemap {
		c.JSON(http.StatusOK, gin.H{"queued": false, "reason": "auto update disabled"})
		return
	}

	job, err := h.queue.Submit(t)
	if errors.Is(err, updater.ErrQueueFull) || errors.Is(err, updater.ErrQueueClosed) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to queue update"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true, "job_id": job.ID})
}
