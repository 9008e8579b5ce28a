// Package robots builds the sitemap directives added to robots.txt.
package robots

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/romangod6/pro-sitemaps-connect/internal/models"
)

// Entries returns one "sitemap:" line for every submittable entry, in list order.
// Each line is prefixed with a newline so the result can be appended directly.
func Entries(list []models.SitemapEntry) string {
	var b strings.Builder
	for _, entry := range list {
		if entry.Submittable() {
			b.WriteString("\nsitemap: ")
			b.WriteString(entry.ClientURL)
		}
	}
	return b.String()
}

// Augment appends the sitemap entries to the generated robots.txt when the
// option is enabled and the site is public.
func Augment(base string, public bool, opts *models.Options) string {
	if !public || opts == nil || !opts.RobotsTxt {
		return base
	}
	return base + Entries(opts.SitemapList)
}

// File is a physical robots.txt that takes precedence over the generated one.
type File struct {
	Path string
}

// Read returns the file contents, or found=false when there is no such file.
func (f File) Read() (content []byte, found bool, err error) {
	if f.Path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read robots file: %w", err)
	}
	return data, true, nil
}

func (f File) Exists() bool {
	_, found, err := f.Read()
	return found && err == nil
}

// Missing lists the submittable sitemap URLs that a robots.txt body does not
// already declare.
func Missing(content []byte, list []models.SitemapEntry) ([]string, error) {
	data, err := robotstxt.FromBytes(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}

	declared := make(map[string]struct{}, len(data.Sitemaps))
	for _, s := range data.Sitemaps {
		declared[strings.TrimSpace(s)] = struct{}{}
	}

	var missing []string
	for _, entry := range list {
		if !entry.Submittable() {
			continue
		}
		if _, ok := declared[entry.ClientURL]; !ok {
			missing = append(missing, entry.ClientURL)
		}
	}
	return missing, nil
}
