package footballdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the match data API base URL.
	DefaultBaseURL = "https://api.football-data.org/v4"

	// Free-plan rate limits.
	defaultRateLimit = 0.15 // ~10 requests per minute
	defaultBurst     = 2
)

// Tier selects the capability level of the data plan. The tier is fixed at
// construction; callers branch on it once, never per request.
type Tier int

const (
	// TierBasic covers match lists and scores only.
	TierBasic Tier = iota
	// TierEnhanced adds lineups and the per-match event feed.
	TierEnhanced
)

func (t Tier) String() string {
	if t == TierEnhanced {
		return "enhanced"
	}
	return "basic"
}

// Source is the capability the monitoring loop and ingestion depend on.
// *Client and *StaticSource both implement it.
type Source interface {
	FetchMatch(ctx context.Context, matchID string) (*Match, error)
	FetchMatchEvents(ctx context.Context, matchID string) ([]MatchEvent, error)
	Capabilities() Tier
}

// Client is a match data API client.
type Client struct {
	baseURL    string
	token      string
	tier       Tier
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithTier sets the data plan tier.
func WithTier(t Tier) ClientOption {
	return func(c *Client) { c.tier = t }
}

// NewClient creates a match data client. The API token is required.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing API token", ErrInvalidConfig)
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		tier:    TierBasic,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Capabilities returns the plan tier fixed at construction.
func (c *Client) Capabilities() Tier { return c.tier }

// FetchLiveMatches returns matches currently in play, optionally filtered
// by competition code.
func (c *Client) FetchLiveMatches(ctx context.Context, competition string) ([]Match, error) {
	params := url.Values{}
	params.Set("status", StatusInPlay)
	if competition != "" {
		params.Set("competitions", competition)
	}

	var out struct {
		Matches []Match `json:"matches"`
	}
	if err := c.get(ctx, "/matches", params, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// FetchUpcomingMatches returns scheduled matches over the next days.
func (c *Client) FetchUpcomingMatches(ctx context.Context, competition string, days int) ([]Match, error) {
	if days <= 0 {
		days = 3
	}
	now := time.Now().UTC()
	params := url.Values{}
	params.Set("status", StatusScheduled)
	params.Set("dateFrom", now.Format("2006-01-02"))
	params.Set("dateTo", now.AddDate(0, 0, days).Format("2006-01-02"))
	if competition != "" {
		params.Set("competitions", competition)
	}

	var out struct {
		Matches []Match `json:"matches"`
	}
	if err := c.get(ctx, "/matches", params, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// FetchMatch returns one match by id.
func (c *Client) FetchMatch(ctx context.Context, matchID string) (*Match, error) {
	var m Match
	if err := c.get(ctx, "/matches/"+matchID, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// FetchMatchLineup returns the published lineup for a match. Lineups are an
// enhanced-plan feature; a lineup not yet published surfaces as ErrNotFound.
func (c *Client) FetchMatchLineup(ctx context.Context, matchID string) (*Lineup, error) {
	if c.tier != TierEnhanced {
		return nil, fmt.Errorf("%w: lineups", ErrUnsupported)
	}
	var l Lineup
	if err := c.get(ctx, "/matches/"+matchID+"/lineup", nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// FetchMatchPlayers returns every player involved in a match, falling back
// to the squad lists when no lineup is published.
func (c *Client) FetchMatchPlayers(ctx context.Context, matchID string) ([]PlayerInfo, error) {
	var out struct {
		Players []PlayerInfo `json:"players"`
	}
	if err := c.get(ctx, "/matches/"+matchID+"/players", nil, &out); err != nil {
		return nil, err
	}
	return out.Players, nil
}

// FetchMatchEvents returns the event feed for a match, oldest first.
func (c *Client) FetchMatchEvents(ctx context.Context, matchID string) ([]MatchEvent, error) {
	if c.tier != TierEnhanced {
		return nil, fmt.Errorf("%w: event feed", ErrUnsupported)
	}
	var out struct {
		Events []MatchEvent `json:"events"`
	}
	if err := c.get(ctx, "/matches/"+matchID+"/events", nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// get performs a rate-limited GET and maps failures onto the closed error
// set in errors.go.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Auth-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		retry := resp.Header.Get("X-RequestCounter-Reset")
		if secs, convErr := strconv.Atoi(retry); convErr == nil && secs > 0 {
			return fmt.Errorf("%w: retry in %ds", ErrRateLimited, secs)
		}
		return ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: rejected token", ErrInvalidConfig)
	case resp.StatusCode >= 500:
		return &ServerError{Code: resp.StatusCode}
	default:
		return fmt.Errorf("%w: status %d", ErrUnknown, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return nil
}
