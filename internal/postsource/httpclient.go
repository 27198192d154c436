package postsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evidengine/core/internal/apperr"
	"github.com/evidengine/core/internal/guard"
)

// providerName is the key this client registers itself under in the
// shared guard.Limiter / guard.BreakerManager registries.
const providerName = "post_source"

// Config configures the HTTP post-source client, mirroring the shape of
// the teacher's Kraken Config (internal/providers/kraken/client.go) minus
// the WebSocket fields this system has no use for.
type Config struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	UserAgent      string
}

// Client is an HTTP-backed Source guarded by rate limiting and circuit
// breaking.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	guard      *guard.ProviderGuard
}

// NewClient wires a Config against the shared limiter/breaker registries,
// registering providerName with cfg's rate and a conservative breaker
// trip threshold.
func NewClient(cfg Config, limiter *guard.Limiter, breaker *guard.BreakerManager) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 1.0
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "evidengine/1.0"
	}

	limiter.Configure(providerName, cfg.RateLimitRPS, cfg.RateLimitBurst)
	breaker.Register(providerName, guard.BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		guard:      guard.NewProviderGuard(providerName, limiter, breaker),
	}
}

func (c *Client) GetRules(ctx context.Context) ([]Rule, error) {
	out, err := c.guard.Do(ctx, "postsource.get_rules", apperr.UpstreamPostSourceError, func(ctx context.Context) (interface{}, error) {
		var resp struct {
			Rules []Rule `json:"rules"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/rules", nil, &resp); err != nil {
			return nil, err
		}
		return resp.Rules, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]Rule), nil
}

func (c *Client) AddRules(ctx context.Context, rules []Rule) ([]Rule, error) {
	out, err := c.guard.Do(ctx, "postsource.add_rules", apperr.UpstreamPostSourceError, func(ctx context.Context) (interface{}, error) {
		body := map[string]interface{}{"add": rules}
		var resp struct {
			Rules []Rule `json:"rules"`
		}
		if err := c.doJSON(ctx, http.MethodPost, "/rules", body, &resp); err != nil {
			return nil, err
		}
		return resp.Rules, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]Rule), nil
}

func (c *Client) DeleteRules(ctx context.Context, ids []string) error {
	_, err := c.guard.Do(ctx, "postsource.delete_rules", apperr.UpstreamPostSourceError, func(ctx context.Context) (interface{}, error) {
		body := map[string]interface{}{"delete": map[string][]string{"ids": ids}}
		return nil, c.doJSON(ctx, http.MethodPost, "/rules", body, nil)
	})
	return err
}

func (c *Client) SearchRecent(ctx context.Context, query string, maxResults int, sinceID string) (SearchResult, error) {
	out, err := c.guard.Do(ctx, "postsource.search_recent", apperr.UpstreamPostSourceError, func(ctx context.Context) (interface{}, error) {
		q := url.Values{}
		q.Set("query", query)
		q.Set("max_results", strconv.Itoa(maxResults))
		if sinceID != "" {
			q.Set("since_id", sinceID)
		}

		var resp SearchResult
		path := "/search/recent?" + q.Encode()
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return SearchResult{}, err
		}
		return resp, nil
	})
	if err != nil {
		return SearchResult{}, err
	}
	return out.(SearchResult), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post source request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &RateLimitError{RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("post source returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode post source response: %w", err)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 30 * time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 30 * time.Second
}
