package api

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/romangod6/pro-sitemaps-connect/internal/prosite"
	"github.com/romangod6/pro-sitemaps-connect/internal/rewrite"
	"github.com/romangod6/pro-sitemaps-connect/internal/robots"
	"github.com/romangod6/pro-sitemaps-connect/internal/settings"
	"github.com/romangod6/pro-sitemaps-connect/internal/updater"
	"github.com/romangod6/pro-sitemaps-connect/internal/utils"
	"github.com/romangod6/pro-sitemaps-connect/internal/verify"
)

//go:embed templates/*.html
var templateFS embed.FS

// Site describes the public site the sitemaps are served for.
type Site struct {
	HomeURL    string
	Public     bool
	RobotsBase string
	RobotsFile robots.File
}

// Admin holds the basic auth credentials for admin routes. An empty password
// leaves them open.
type Admin struct {
	User     string
	Password string
}

// Submitter accepts auto-update jobs.
type Submitter interface {
	Submit(t updater.Transition) (updater.Job, error)
}

// BasePath is the path of the home URL with a trailing slash, "/" for a
// site at the domain root.
func (s Site) BasePath() string {
	u, err := url.Parse(s.HomeURL)
	if err != nil {
		return "/"
	}
	return strings.TrimRight(u.Path, "/") + "/"
}

type Dependencies struct {
	Settings *settings.Manager
	Client   *prosite.Client
	Rules    *rewrite.RuleSet
	Queue    Submitter
	Verifier *verify.Verifier
	Site     Site
	Admin    Admin
	Logger   *utils.Logger
}

type Server struct {
	router *gin.Engine
	port   int
	server *http.Server
}

func NewServer(port int, deps Dependencies) *Server {
	router := gin.Default()
	router.SetHTMLTemplate(template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")))

	// Create handler
	handler := NewHandler(deps)

	// Public surface: rewritten sitemap paths, query var fallback, robots.txt
	router.GET("/robots.txt", handler.RobotsTxt)
	router.GET(handler.basePath+"index.php", handler.IndexQuery)
	router.HEAD(handler.basePath+"index.php", handler.IndexQuery)
	router.NoRoute(handler.Rewrite)

	var auth []gin.HandlerFunc
	if deps.Admin.Password != "" {
		auth = append(auth, gin.BasicAuth(gin.Accounts{deps.Admin.User: deps.Admin.Password}))
	}

	// Settings page
	admin := router.Group("/admin", auth...)
	{
		admin.GET("/settings", handler.SettingsPage)
		admin.POST("/settings", handler.SaveSettingsForm)
	}

	api := router.Group("/api")
	api.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	{
		// Health check
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		protected := api.Group("", auth...)
		{
			protected.GET("/settings", handler.GetSettings)
			protected.PUT("/settings", handler.UpdateSettings)
			protected.POST("/settings/test", handler.TestConnection)
			protected.GET("/sitemaps", handler.ListSitemaps)
			protected.POST("/sitemaps/verify", handler.VerifySitemaps)
			protected.GET("/robots/entries", handler.RobotsEntries)
			protected.POST("/posts/transition", handler.PostTransition)
		}
	}

	return &Server{
		router: router,
		port:   port,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
