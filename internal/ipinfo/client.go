package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ufwinspector/internal/flightcache"
	"ufwinspector/internal/logger"
)

const (
	DefaultURL     = "https://ipinfo.io"
	DefaultTimeout = 3 * time.Second
)

// Config configures the ipinfo client.
type Config struct {
	URL           string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Headers       map[string]string
}

// Info is the subset of the ipinfo.io response that is used.
type Info struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	Country  string `json:"country,omitempty"`
	Org      string `json:"org,omitempty"`
}

// Client looks up the organisation owning an address. Each address is
// requested at most once per client.
type Client struct {
	url     string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	cache   *flightcache.Cache[string]
}

// NewClient creates an ipinfo client.
func NewClient(cfg Config) (*Client, error) {
	url := strings.TrimRight(cfg.URL, "/")
	if url == "" {
		url = DefaultURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("ipinfo URL must be http or https: %q", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	headers := map[string]string{"User-Agent": "ufwinspector"}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Client{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		cache:   flightcache.New[string](),
	}, nil
}

// ISP returns the provider name for addr, or "" if it cannot be determined.
func (c *Client) ISP(ctx context.Context, addr string) string {
	return c.cache.Get(addr, func() string {
		info, err := c.Fetch(ctx, addr)
		if err != nil {
			logger.Debugf("ipinfo: lookup for %s failed: %v", addr, err)
			return ""
		}
		return ParseOrg(info.Org)
	})
}

// Lookups returns the number of distinct addresses requested.
func (c *Client) Lookups() int64 {
	return c.cache.Loads()
}

// Fetch requests the raw record for addr.
func (c *Client) Fetch(ctx context.Context, addr string) (*Info, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/"+addr+"/json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("http request failed with status %s", resp.Status)
	}

	var info Info
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &info, nil
}

// ParseOrg strips the leading AS number from an ipinfo org field, so
// "AS15169 Google LLC" becomes "Google LLC".
func ParseOrg(org string) string {
	org = strings.TrimSpace(org)
	if head, rest, ok := strings.Cut(org, " "); ok && strings.HasPrefix(head, "AS") {
		return strings.TrimSpace(rest)
	}
	return org
}
