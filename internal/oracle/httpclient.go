package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evidengine/core/internal/apperr"
	"github.com/evidengine/core/internal/domain"
	"github.com/evidengine/core/internal/guard"
)

const providerName = "oracle"

// Config configures the HTTP oracle client.
type Config struct {
	Endpoint       string
	APIKey         string
	ModelName      string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// Client is an HTTP-backed Oracle guarded by rate limiting and circuit
// breaking, in the same idiom as postsource.Client.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	modelName  string
	guard      *guard.ProviderGuard
}

// NewClient wires cfg against the shared limiter/breaker registries.
func NewClient(cfg Config, limiter *guard.Limiter, breaker *guard.BreakerManager) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 2.0
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 4
	}

	limiter.Configure(providerName, cfg.RateLimitRPS, cfg.RateLimitBurst)
	breaker.Register(providerName, guard.BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             60 * time.Second,
		ConsecutiveFailures: 3,
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		modelName:  cfg.ModelName,
		guard:      guard.NewProviderGuard(providerName, limiter, breaker),
	}
}

// wireOutcomeScores is the oracle's raw per-outcome score payload before
// range clamping is applied (§9: clamp, don't reject, out-of-range
// floats).
type wireOutcomeScores struct {
	Relevance   float64 `json:"relevance"`
	Stance      float64 `json:"stance"`
	Strength    float64 `json:"strength"`
	Credibility float64 `json:"credibility"`
	Confidence  float64 `json:"confidence"`
}

type wireFlags struct {
	IsSarcasm    bool `json:"is_sarcasm"`
	IsQuestion   bool `json:"is_question"`
	IsQuote      bool `json:"is_quote"`
	IsRumorStyle bool `json:"is_rumor_style"`
}

type wireDisplayLabels struct {
	Summary          string `json:"summary"`
	Reason           string `json:"reason"`
	CredibilityLabel string `json:"credibility_label"`
	StanceLabel      string `json:"stance_label"`
}

type wireResult struct {
	PostID        string                       `json:"post_id"`
	PerOutcome    map[string]wireOutcomeScores `json:"per_outcome"`
	Flags         wireFlags                    `json:"flags"`
	DisplayLabels wireDisplayLabels            `json:"display_labels"`
}

type wireResponse struct {
	Results []wireResult `json:"results"`
}

func (c *Client) ScoreBatch(ctx context.Context, req Request) (Response, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	out, err := c.guard.Do(ctx, "oracle.score_batch", apperr.UpstreamOracleError, func(ctx context.Context) (interface{}, error) {
		return c.scoreBatch(ctx, req)
	})
	if err != nil {
		return Response{}, err
	}
	return out.(Response), nil
}

func (c *Client) scoreBatch(ctx context.Context, req Request) (Response, error) {
	outcomes := make([]map[string]string, 0, len(req.Market.Outcomes))
	for _, o := range req.Market.Outcomes {
		outcomes = append(outcomes, map[string]string{"id": o.Key, "label": o.Label})
	}

	posts := make([]map[string]interface{}, 0, len(req.Posts))
	for _, p := range req.Posts {
		posts = append(posts, map[string]interface{}{
			"post_id":         p.PostID,
			"created_at_ms":   p.CreatedAtMs,
			"text":            p.Text,
			"author":          p.Author,
			"initial_metrics": p.InitialMetrics,
		})
	}

	body := map[string]interface{}{
		"request_id": req.RequestID,
		"model":      c.modelName,
		"market": map[string]interface{}{
			"market_id": req.Market.MarketID,
			"question":  req.Market.Question,
			"outcomes":  outcomes,
		},
		"posts": posts,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("encode oracle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return Response{}, fmt.Errorf("build oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("oracle returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Response{}, fmt.Errorf("decode oracle response: %w", err)
	}

	return fromWire(wire), nil
}

// fromWire validates shape (already enforced by json.Decode's typing) and
// clamps every float score into its declared range, per §9: schema
// violations reject, range violations clamp.
func fromWire(wire wireResponse) Response {
	results := make([]ResultRow, 0, len(wire.Results))
	for _, r := range wire.Results {
		perOutcome := make(map[string]domain.OutcomeScores, len(r.PerOutcome))
		for key, sc := range r.PerOutcome {
			perOutcome[key] = domain.OutcomeScores{
				Relevance:   clamp(sc.Relevance, 0, 1),
				Stance:      clamp(sc.Stance, -1, 1),
				Strength:    clamp(sc.Strength, 0, 1),
				Credibility: clamp(sc.Credibility, 0, 1),
				Confidence:  clamp(sc.Confidence, 0, 1),
			}
		}
		results = append(results, ResultRow{
			PostID:     r.PostID,
			PerOutcome: perOutcome,
			Flags: domain.PostFlags{
				IsSarcasm:    r.Flags.IsSarcasm,
				IsQuestion:   r.Flags.IsQuestion,
				IsQuote:      r.Flags.IsQuote,
				IsRumorStyle: r.Flags.IsRumorStyle,
			},
			DisplayLabels: domain.DisplayLabels{
				Summary:          r.DisplayLabels.Summary,
				Reason:           r.DisplayLabels.Reason,
				CredibilityLabel: normalizeCredibilityLabel(r.DisplayLabels.CredibilityLabel),
				StanceLabel:      r.DisplayLabels.StanceLabel,
			},
		})
	}
	return Response{Results: results}
}

func normalizeCredibilityLabel(raw string) domain.CredibilityLabel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return domain.CredibilityHigh
	case "low":
		return domain.CredibilityLow
	default:
		return domain.CredibilityMedium
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
