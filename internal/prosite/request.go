package prosite

import (
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// RequestInfo carries headers of the visitor request that are forwarded to the API.
type RequestInfo struct {
	IfModifiedSince string
	RemoteIP        string
	UserAgent       string
}

// RequestInfoFrom extracts the passthrough fields from an incoming request.
func RequestInfoFrom(r *http.Request) *RequestInfo {
	info := &RequestInfo{
		IfModifiedSince: r.Header.Get("If-Modified-Since"),
		UserAgent:       r.UserAgent(),
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		info.RemoteIP = host
	} else {
		info.RemoteIP = r.RemoteAddr
	}
	return info
}

func (i *RequestInfo) apply(form url.Values) {
	if i == nil {
		return
	}
	set := func(key, value string) {
		if value = sanitizeText(value); value != "" {
			form.Set(key, value)
		}
	}
	set("if_mod_since", i.IfModifiedSince)
	set("remote_ip", i.RemoteIP)
	set("remote_user_agent", i.UserAgent)
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// sanitizeText reduces a header value to single-line plain text.
func sanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
