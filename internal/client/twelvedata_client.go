package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yourorg/market-insights/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Quote is one TwelveData quote. Numeric fields arrive either as JSON
// numbers or as numeric strings.
type Quote struct {
	Symbol    string      `json:"symbol"`
	Name      string      `json:"name"`
	Exchange  string      `json:"exchange"`
	Datetime  string      `json:"datetime"`
	Timestamp json.Number `json:"timestamp"`
	Open      json.Number `json:"open"`
	High      json.Number `json:"high"`
	Low       json.Number `json:"low"`
	Close     json.Number `json:"close"`
	Volume    json.Number `json:"volume"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
}

// vendorError is the body TwelveData answers with when a request fails
type vendorError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// TwelveDataClient fetches quotes from the TwelveData REST API
type TwelveDataClient struct {
	client *resty.Client
	apiKey string
	logger *zap.Logger
}

// NewTwelveDataClient creates a new TwelveData client
func NewTwelveDataClient(cfg config.TwelveDataConfig, logger *zap.Logger) *TwelveDataClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(30 * time.Second)

	return &TwelveDataClient{
		client: client,
		apiKey: cfg.APIKey,
		logger: logger.Named("twelvedata"),
	}
}

// Quotes fetches the latest quote of every symbol in one request. Symbols
// the vendor reports an error for are left out.
func (c *TwelveDataClient) Quotes(ctx context.Context, symbols []string, interval string) ([]Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	params := map[string]string{
		"symbol": strings.Join(symbols, ","),
		"apikey": c.apiKey,
	}
	if interval != "" {
		params["interval"] = interval
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/quote")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quotes: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
	}

	return c.parseQuotes(resp.Body(), symbols)
}

// parseQuotes normalises both response shapes: a single quote for one
// symbol, an object keyed by symbol for several
func (c *TwelveDataClient) parseQuotes(body []byte, symbols []string) ([]Quote, error) {
	var vendorErr vendorError
	if err := json.Unmarshal(body, &vendorErr); err == nil && vendorErr.Status == "error" {
		return nil, fmt.Errorf("API error %d: %s", vendorErr.Code, vendorErr.Message)
	}

	if len(symbols) == 1 {
		var quote Quote
		if err := json.Unmarshal(body, &quote); err != nil {
			return nil, fmt.Errorf("failed to parse quote: %w", err)
		}
		if quote.Symbol == "" {
			return nil, errors.New("quote response has no symbol")
		}
		return []Quote{quote}, nil
	}

	var keyed map[string]Quote
	if err := json.Unmarshal(body, &keyed); err != nil {
		return nil, fmt.Errorf("failed to parse quotes: %w", err)
	}

	quotes := make([]Quote, 0, len(keyed))
	for _, symbol := range symbols {
		quote, ok := keyed[symbol]
		if !ok {
			continue
		}
		if quote.Status == "error" {
			c.logger.Warn("Vendor returned an error for symbol",
				zap.String("symbol", symbol),
				zap.String("message", quote.Message))
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}
