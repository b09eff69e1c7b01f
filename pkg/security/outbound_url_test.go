package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrapePolicyCheck(t *testing.T) {
	strict := ScrapePolicy{BlockedDomains: []string{"facebook.com", ".pinterest.com", "*.ads.example", "tracker-*.net"}}
	lenient := ScrapePolicy{AllowHTTP: true, AllowLocalNetworks: true}

	tests := []struct {
		name    string
		policy  ScrapePolicy
		url     string
		allowed bool
	}{
		{"https is allowed", strict, "https://www.cboe.com/vix", true},
		{"http rejected by default", strict, "http://www.cboe.com/vix", false},
		{"http allowed when enabled", lenient, "http://www.cboe.com/vix", true},
		{"ftp never allowed", lenient, "ftp://files.example/vix.pdf", false},
		{"missing host", strict, "https:///path", false},
		{"blocked domain", strict, "https://facebook.com/x", false},
		{"blocked subdomain", strict, "https://m.facebook.com/x", false},
		{"blocked with leading dot", strict, "https://www.pinterest.com/pin/1", false},
		{"lookalike is not blocked", strict, "https://notfacebook.com/x", true},
		{"glob blocks subdomain", strict, "https://cdn.ads.example/x.js", false},
		{"glob blocks prefix", strict, "https://tracker-eu.net/p", false},
		{"glob does not block sibling", strict, "https://tracker.net/p", true},
		{"localhost rejected", strict, "https://localhost:8080/", false},
		{"loopback rejected", strict, "https://127.0.0.1/", false},
		{"private range rejected", strict, "https://10.1.2.3/", false},
		{"zoned ipv6 rejected", strict, "https://[fe80::1%25eth0]/", false},
		{"zoned ipv6 allowed for local networks", lenient, "https://[fe80::1%25eth0]/", true},
		{"loopback allowed for local networks", lenient, "http://127.0.0.1:9999/page", true},
		{"unspecified always rejected", lenient, "http://0.0.0.0/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Check(tt.url)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrBlockedURL)
			}
		})
	}
}
