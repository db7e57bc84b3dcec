package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yourorg/market-insights/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrProfileNotFound is returned when Finnhub has no profile for a symbol
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a Finnhub company profile
type Profile struct {
	Ticker               string  `json:"ticker"`
	Name                 string  `json:"name"`
	WebURL               string  `json:"weburl"`
	Country              string  `json:"country"`
	Logo                 string  `json:"logo"`
	FinnhubIndustry      string  `json:"finnhubIndustry"`
	Exchange             string  `json:"exchange"`
	Phone                string  `json:"phone"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	ShareOutstanding     float64 `json:"shareOutstanding"`
}

// FinnhubClient handles Finnhub API operations
type FinnhubClient struct {
	client *resty.Client
	apiKey string
	logger *zap.Logger
}

// NewFinnhubClient creates a new Finnhub client
func NewFinnhubClient(cfg config.FinnhubConfig, logger *zap.Logger) *FinnhubClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(30 * time.Second)

	return &FinnhubClient{
		client: client,
		apiKey: cfg.APIKey,
		logger: logger.Named("finnhub"),
	}
}

// Profile fetches the company profile of symbol
func (c *FinnhubClient) Profile(ctx context.Context, symbol string) (*Profile, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  c.apiKey,
		}).
		Get("/stock/profile2")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
	}

	var profile Profile
	if err := json.Unmarshal(resp.Body(), &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}
	if profile.Ticker == "" {
		return nil, fmt.Errorf("%s: %w", symbol, ErrProfileNotFound)
	}
	return &profile, nil
}
