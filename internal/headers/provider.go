// Package headers selects ordered candidate request-header sets for a URL.
// Some media platforms reject requests that do not look like a browser, so
// each hostile host category gets its own ordered list of header sets to try.
// Selection is pure data lookup; no network access happens here.
package headers

import (
	"net/url"
	"strings"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Strategy is a named request-header set.
type Strategy struct {
	Name    string
	Headers map[string]string
}

// Provider resolves the ordered strategy list for a URL.
type Provider struct{}

// NewProvider creates a header strategy provider.
func NewProvider() *Provider {
	return &Provider{}
}

// StrategiesFor returns a non-empty, most-specific-first list of header sets
// to try for the given URL. Unknown hosts get the generic fallback list.
// The result is deterministic for a given URL.
func (p *Provider) StrategiesFor(rawURL string) []Strategy {
	u, err := url.Parse(rawURL)
	if err != nil {
		return genericStrategies()
	}

	host := strings.ToLower(u.Hostname())

	switch {
	case matchesHost(host, "twitter.com", "x.com", "twimg.com"):
		return []Strategy{
			{
				Name: "twitter_browser",
				Headers: map[string]string{
					"User-Agent": chromeUA,
					"Accept":     "image/avif,image/webp,image/apng,*/*;q=0.8",
					"Referer":    "https://twitter.com/",
				},
			},
			{
				Name: "twitter_plain",
				Headers: map[string]string{
					"User-Agent": chromeUA,
					"Accept":     "*/*",
				},
			},
		}
	case matchesHost(host, "instagram.com", "cdninstagram.com", "fbcdn.net"):
		return []Strategy{
			{
				Name: "instagram_browser",
				Headers: map[string]string{
					"User-Agent":      chromeUA,
					"Accept":          "image/avif,image/webp,*/*",
					"Accept-Language": "en-US,en;q=0.9",
					"Referer":         "https://www.instagram.com/",
				},
			},
		}
	case matchesHost(host, "pinterest.com", "pinimg.com"):
		return []Strategy{
			{
				Name: "pinterest_browser",
				Headers: map[string]string{
					"User-Agent": chromeUA,
					"Accept":     "image/avif,image/webp,image/apng,*/*;q=0.8",
					"Referer":    "https://www.pinterest.com/",
				},
			},
			{
				Name: "pinterest_plain",
				Headers: map[string]string{
					"User-Agent": chromeUA,
				},
			},
		}
	default:
		return genericStrategies()
	}
}

func genericStrategies() []Strategy {
	return []Strategy{
		{
			Name: "browser",
			Headers: map[string]string{
				"User-Agent":      chromeUA,
				"Accept":          "image/avif,image/webp,video/*,audio/*,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.9",
			},
		},
		{
			Name: "browser_no_accept",
			Headers: map[string]string{
				"User-Agent": chromeUA,
			},
		},
		{
			Name: "minimal",
			Headers: map[string]string{
				"User-Agent": "media-analyzer/1.0",
			},
		},
	}
}

// matchesHost reports whether host equals one of the domains or is a
// subdomain of one.
func matchesHost(host string, domains ...string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}

	return false
}
