package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

// ErrBlockedURL wraps every rejection so callers can tell policy failures
// from transport failures.
var ErrBlockedURL = errors.New("blocked outbound URL")

// ScrapePolicy decides which URLs the scraper may fetch.
type ScrapePolicy struct {
	// AllowHTTP permits plain HTTP URLs. HTTPS is always allowed.
	AllowHTTP bool `mapstructure:"allow-http"`
	// AllowLocalNetworks permits loopback/private/link-local IP targets and localhost hostnames.
	AllowLocalNetworks bool `mapstructure:"allow-local-networks"`
	// BlockedDomains rejects a host equal to, or a subdomain of, any entry.
	// Entries with glob characters (e.g. "ads.*.com") are matched against the whole host.
	BlockedDomains []string `mapstructure:"blocked-domains"`
}

func blocked(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBlockedURL, format, args...)
}

// Check validates that a search result URL is safe to fetch.
func (p ScrapePolicy) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return blocked("invalid URL %q: %v", rawURL, err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return blocked("http scheme is not allowed")
		}
	default:
		return blocked("unsupported URL scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return blocked("URL host is required")
	}

	for _, d := range p.BlockedDomains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
		if d == "" {
			continue
		}
		if strings.ContainsAny(d, "*?[") {
			matched, err := glob.Match(d, host)
			if err != nil {
				return blocked("invalid blocked domain pattern %q: %v", d, err)
			}
			if matched {
				return blocked("domain %q is blocked by %q", host, d)
			}
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return blocked("domain %q is blocked", host)
		}
	}

	if !p.AllowLocalNetworks {
		if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
			return blocked("local hostname %q is not allowed", host)
		}
	}

	// IP literals are checked without DNS lookups.
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Zone() != "" && !p.AllowLocalNetworks {
			return blocked("zoned IP address %q is not allowed", host)
		}
		addr = addr.Unmap()

		if addr.IsUnspecified() || addr.IsMulticast() {
			return blocked("disallowed IP address %q", host)
		}

		if !p.AllowLocalNetworks {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
				return blocked("local network IP %q is not allowed", host)
			}
		}
	}

	return nil
}
