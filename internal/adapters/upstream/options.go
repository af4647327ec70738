package upstream

import (
	"net/http"
	"time"

	"github.com/okian/killpoints/pkg/logger"
	"golang.org/x/time/rate"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithZKillboardURL sets the zKillboard base URL.
func WithZKillboardURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.zkillURL = trimSlash(u)
		}
	}
}

// WithESIURL sets the ESI base URL.
func WithESIURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.esiURL = trimSlash(u)
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithUserAgent sets the User-Agent header sent upstream.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithZKillboardRate throttles zKillboard requests.
func WithZKillboardRate(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.zkillLimiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithESIRate throttles ESI requests.
func WithESIRate(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.esiLimiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithMaxRetries caps retries of transient failures per request.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoff sets the first and the largest wait between retries.
func WithBackoff(initial, maxWait time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if maxWait >= initial && maxWait > 0 {
			c.maxBackoff = maxWait
		}
	}
}

// WithPageTTL sets how long zKillboard pages are cached.
func WithPageTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pageTTL = d
		}
	}
}

// WithKillmailCacheSize caps the killmail memo.
func WithKillmailCacheSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.killmailCacheSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
