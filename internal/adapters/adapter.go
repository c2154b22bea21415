package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Exchange is the normalized snapshot source the signal engines consume.
// Every method is a single REST round-trip; callers fan out across venues
// and tolerate individual failures.
type Exchange interface {
	Name() string

	// Ticker returns the latest derivatives ticker for a symbol.
	Ticker(ctx context.Context, symbol string) (*Ticker, error)

	// Positioning returns account long/short ratios where the venue
	// exposes them.
	Positioning(ctx context.Context, symbol string) (*Positioning, error)

	// Liquidations returns forced-liquidation events since the given time,
	// newest first. Venues without a liquidation feed return an empty slice.
	Liquidations(ctx context.Context, symbol string, since time.Time) ([]LiquidationEvent, error)

	// OrderBook returns depth up to the requested number of levels per side.
	OrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)

	// OIHistory returns open-interest history points, oldest first.
	OIHistory(ctx context.Context, symbol string, limit int) ([]OIPoint, error)
}

// Config holds common REST adapter settings.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	UserAgent      string        `yaml:"user_agent"`
}

func (c *Config) applyDefaults(baseURL string, rps float64) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.RateLimitRPS == 0 {
		c.RateLimitRPS = rps
	}
	if c.UserAgent == "" {
		c.UserAgent = "derivscope/1.0 (derivatives signal scanner)"
	}
}

// restClient wraps an HTTP client with per-venue rate limiting and a
// circuit breaker so one misbehaving venue cannot stall the fan-out.
type restClient struct {
	venue      string
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

func newRESTClient(venue string, config Config) *restClient {
	return &restClient{
		venue:  venue,
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), int(config.RateLimitRPS)+1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        venue,
			MaxRequests: 3,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (rc *restClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := rc.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	body, err := rc.breaker.Execute(func() (interface{}, error) {
		return rc.do(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

func (rc *restClient) do(ctx context.Context, endpoint string) ([]byte, error) {
	url := rc.config.BaseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", rc.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, rc.venue, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
