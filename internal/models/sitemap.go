// internal/models/sitemap.go
package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// SitemapEntry is one sitemap reported by the remote service.
type SitemapEntry struct {
	ClientURL     string `json:"client_url"`
	SitemapURL    string `json:"sitemap_url"`
	SESubmit      Flag   `json:"se_submit"`
	ElementsCount int    `json:"elements_count"`
}

// Submittable is true for sitemaps that belong in robots.txt and search consoles.
func (e SitemapEntry) Submittable() bool {
	return bool(e.SESubmit) && e.ElementsCount > 0
}

// Flag decodes booleans the remote API sends as true/false, 0/1 or "0"/"1".
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = false
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return f.parse(s)
	default:
		return f.parse(string(data))
	}
}

func (f *Flag) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*f = false
		return nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		*f = Flag(b)
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = n != 0
	return nil
}
