// Package link validates the user-supplied parts of a submission: the track
// URL and its display title.
package link

import (
	"net"
	"net/url"
	"strings"
)

// AllowedDomains lists the hostname fragments a submitted URL must contain.
// Matching is a substring test on the hostname, so subdomains such as
// www.youtube.com, m.youtube.com or open.spotify.com are accepted.
var AllowedDomains = []string{
	"youtube.com",
	"youtu.be",
	"spotify.com",
	"soundcloud.com",
}

// ValidateURL trims and parses raw, checks its scheme and hostname against
// the allowlist, and returns the canonical form. The second return value is
// false when the URL is rejected for any reason.
func ValidateURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if !allowedHost(host) {
		return "", false
	}

	u.Host = canonicalHost(u.Scheme, host, u.Port())
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), true
}

// canonicalHost drops the port when it is the scheme's default, so
// https://youtube.com:443/x and https://youtube.com/x store the same link.
func canonicalHost(scheme, host, port string) string {
	if port == "" || defaultPorts[scheme] == port {
		return host
	}
	return net.JoinHostPort(host, port)
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

func allowedHost(host string) bool {
	for _, domain := range AllowedDomains {
		if strings.Contains(host, domain) {
			return true
		}
	}
	return false
}
