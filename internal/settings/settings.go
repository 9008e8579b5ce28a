// Package settings owns the persisted plugin options.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/romangod6/pro-sitemaps-connect/internal/models"
	"github.com/romangod6/pro-sitemaps-connect/internal/rewrite"
	"github.com/romangod6/pro-sitemaps-connect/internal/storage"
	"github.com/romangod6/pro-sitemaps-connect/internal/utils"
)

// ValidationError is returned when an update carries an invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Update is a partial change to the options. Nil fields are left untouched.
type Update struct {
	SiteID        *string `json:"ps_siteid"`
	APIKey        *string `json:"ps_apikey"`
	SitemapName   *string `json:"ps_sitemap_name"`
	RobotsTxt     *bool   `json:"ps_robots_txt"`
	UpdateSitemap *bool   `json:"ps_update_sitemap"`
}

// Manager serializes every read-modify-write of the options record.
type Manager struct {
	store  storage.Store
	rules  *rewrite.RuleSet
	logger *utils.Logger
	mutex  sync.Mutex
}

func NewManager(store storage.Store, rules *rewrite.RuleSet, logger *utils.Logger) *Manager {
	return &Manager{store: store, rules: rules, logger: logger}
}

// Activate stores the default options unless options already exist, then
// registers the rewrite rule for whatever is stored.
func (m *Manager) Activate(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	data, err := json.Marshal(models.DefaultOptions())
	if err != nil {
		return err
	}
	added, err := m.store.AddOption(ctx, models.OptionName, data)
	if err != nil {
		return fmt.Errorf("failed to add default options: %w", err)
	}
	if added {
		m.logger.LogInfo("Stored default options")
	}

	opts, err := m.Load(ctx)
	if err != nil {
		return err
	}
	m.register(opts.SitemapName)
	return nil
}

// Load returns the stored options or the defaults when none are stored.
func (m *Manager) Load(ctx context.Context) (*models.Options, error) {
	data, found, err := m.store.GetOption(ctx, models.OptionName)
	if err != nil {
		return nil, fmt.Errorf("failed to load options: %w", err)
	}
	if !found {
		return models.DefaultOptions(), nil
	}

	opts := models.DefaultOptions()
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	if opts.SitemapList == nil {
		opts.SitemapList = []models.SitemapEntry{}
	}
	return opts, nil
}

// Save normalizes and persists opts, then re-registers the rewrite rule.
func (m *Manager) Save(ctx context.Context, opts *models.Options) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.save(ctx, opts)
}

// Update applies a partial change to the stored options and saves the result.
func (m *Manager) Update(ctx context.Context, u Update) (*models.Options, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	current, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	opts := Apply(current, u)
	if err := m.save(ctx, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func (m *Manager) save(ctx context.Context, opts *models.Options) error {
	opts.SiteID = strings.TrimSpace(opts.SiteID)
	opts.APIKey = strings.TrimSpace(opts.APIKey)
	if err := validateSiteID(opts.SiteID); err != nil {
		return err
	}
	opts.SitemapName = models.NormalizeSitemapName(opts.SitemapName)

	if err := m.write(ctx, opts); err != nil {
		return err
	}
	m.register(opts.SitemapName)
	m.logger.LogInfo("Saved options (sitemap name %s)", opts.SitemapName)
	return nil
}

// CacheSitemaps replaces the cached sitemap list.
func (m *Manager) CacheSitemaps(ctx context.Context, list []models.SitemapEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	opts, err := m.Load(ctx)
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.SitemapEntry{}
	}
	opts.SitemapList = list
	return m.write(ctx, opts)
}

// Uninstall removes the options entirely.
func (m *Manager) Uninstall(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.store.DeleteOption(ctx, models.OptionName); err != nil {
		return fmt.Errorf("failed to delete options: %w", err)
	}
	m.register("")
	m.logger.LogInfo("Removed options")
	return nil
}

func (m *Manager) write(ctx context.Context, opts *models.Options) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	if err := m.store.UpdateOption(ctx, models.OptionName, data); err != nil {
		return fmt.Errorf("failed to save options: %w", err)
	}
	return nil
}

func (m *Manager) register(sitemapName string) {
	if m.rules == nil {
		return
	}
	if rule := m.rules.Register(sitemapName); rule != nil {
		m.logger.LogDebug("Registered rewrite rule %s", rule.Pattern())
	}
}

// Apply returns a copy of opts with the update applied.
func Apply(opts *models.Options, u Update) *models.Options {
	out := opts.Clone()
	if u.SiteID != nil {
		out.SiteID = *u.SiteID
	}
	if u.APIKey != nil {
		out.APIKey = *u.APIKey
	}
	if u.SitemapName != nil {
		out.SitemapName = *u.SitemapName
	}
	if u.RobotsTxt != nil {
		out.RobotsTxt = *u.RobotsTxt
	}
	if u.UpdateSitemap != nil {
		out.UpdateSitemap = *u.UpdateSitemap
	}
	return out
}

// Form field names used by the settings page.
const (
	FieldSiteID        = "ps_siteid"
	FieldAPIKey        = "ps_apikey"
	FieldSitemapName   = "ps_sitemap_name"
	FieldRobotsTxt     = "ps_robots_txt"
	FieldUpdateSitemap = "ps_update_sitemap"

	setMarkerPrefix = "_set_"
)

// SetMarker is the hidden input name announcing that a field was rendered.
func SetMarker(field string) string {
	return setMarkerPrefix + field
}

// UpdateFromForm builds an update from a submitted settings form. An unchecked
// checkbox is only turned off when its _set_ marker was submitted.
func UpdateFromForm(form url.Values) Update {
	var u Update
	text := func(field string) *string {
		if vs, ok := form[field]; ok && len(vs) > 0 {
			v := vs[0]
			return &v
		}
		return nil
	}
	checkbox := func(field string) *bool {
		if _, ok := form[field]; ok {
			v := form.Get(field) != "" && form.Get(field) != "0"
			return &v
		}
		if _, ok := form[SetMarker(field)]; ok {
			v := false
			return &v
		}
		return nil
	}

	u.SiteID = text(FieldSiteID)
	u.APIKey = text(FieldAPIKey)
	u.SitemapName = text(FieldSitemapName)
	u.RobotsTxt = checkbox(FieldRobotsTxt)
	u.UpdateSitemap = checkbox(FieldUpdateSitemap)
	return u
}

func validateSiteID(id string) error {
	for _, r := range id {
		if r < '0' || r > '9' {
			return &ValidationError{Field: FieldSiteID, Message: "must be numeric"}
		}
	}
	return nil
}
