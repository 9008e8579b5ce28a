package models

import "strings"

// OptionName is the key the plugin configuration is persisted under.
const OptionName = "pro_sitemaps_connect_options"

const (
	DefaultSitemapName = "pro-sitemaps.xml"
	SitemapExtension   = ".xml"
)

// Options holds the plugin configuration and the cached list of remote sitemaps.
type Options struct {
	SiteID        string         `json:"ps_siteid"`
	APIKey        string         `json:"ps_apikey"`
	SitemapName   string         `json:"ps_sitemap_name"`
	RobotsTxt     bool           `json:"ps_robots_txt"`
	UpdateSitemap bool           `json:"ps_update_sitemap"`
	SitemapList   []SitemapEntry `json:"sitemap_list"`
}

// DefaultOptions returns the options written on activation.
func DefaultOptions() *Options {
	return &Options{
		SitemapName:   DefaultSitemapName,
		RobotsTxt:     true,
		UpdateSitemap: true,
		SitemapList:   []SitemapEntry{},
	}
}

// HasAPIInfo reports whether both API key and site id are set.
func (o *Options) HasAPIInfo() bool {
	return o != nil && o.APIKey != "" && o.SiteID != ""
}

// NormalizeSitemapName appends the .xml extension once when it is missing.
// An empty name falls back to the default.
func NormalizeSitemapName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultSitemapName
	}
	if !strings.HasSuffix(name, SitemapExtension) {
		name += SitemapExtension
	}
	return name
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (o *Options) Clone() *Options {
	if o == nil {
		return nil
	}
	c := *o
	c.SitemapList = append([]SitemapEntry(nil), o.SitemapList...)
	return &c
}
