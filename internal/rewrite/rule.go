// Package rewrite maps local request paths to the sitemap query variable.
package rewrite

import (
	"regexp"
	"strings"
	"sync"
)

// QueryVar is the query variable a matching request is rewritten to.
const QueryVar = "prositemaps-get"

var extensions = []string{"xml", "txt", "html", "xsl"}

// Rule captures the requested sitemap file for a configured sitemap name.
type Rule struct {
	Slug    string
	pattern *regexp.Regexp
}

// Slug strips every literal ".xml" from the sitemap name.
func Slug(sitemapName string) string {
	return strings.ReplaceAll(sitemapName, ".xml", "")
}

// NewRule returns nil when the sitemap name leaves an empty slug.
func NewRule(sitemapName string) *Rule {
	slug := Slug(sitemapName)
	if slug == "" {
		return nil
	}
	expr := `^(` + regexp.QuoteMeta(slug) + `[^/]*\.(` + strings.Join(extensions, "|") + `))`
	return &Rule{
		Slug:    slug,
		pattern: regexp.MustCompile(expr),
	}
}

// Pattern returns the regular expression source.
func (r *Rule) Pattern() string {
	return r.pattern.String()
}

// Match tests a request path relative to the site root and returns the value
// of the query variable.
func (r *Rule) Match(path string) (string, bool) {
	if r == nil {
		return "", false
	}
	m := r.pattern.FindStringSubmatch(strings.TrimPrefix(path, "/"))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RuleSet holds the currently registered rule.
type RuleSet struct {
	rule  *Rule
	mutex sync.RWMutex
}

func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Register replaces the rule for a new sitemap name and returns it.
func (rs *RuleSet) Register(sitemapName string) *Rule {
	rule := NewRule(sitemapName)
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	rs.rule = rule
	return rule
}

func (rs *RuleSet) Current() *Rule {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()
	return rs.rule
}

func (rs *RuleSet) Match(path string) (string, bool) {
	return rs.Current().Match(path)
}
