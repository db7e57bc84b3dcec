package ingestion

import (
	"context"
	"strings"
	"time"

	"github.com/yourorg/market-insights/internal/client"
	"github.com/yourorg/market-insights/internal/config"
	"github.com/yourorg/market-insights/internal/model"

	"go.uber.org/zap"
)

// ProfileFetcher fetches one company profile
type ProfileFetcher interface {
	Profile(ctx context.Context, symbol string) (*client.Profile, error)
}

// CompanyStore persists company profiles
type CompanyStore interface {
	UpsertCompanies(ctx context.Context, companies []model.Company) bool
}

// ProfilePoller refreshes the company profiles of all symbols
type ProfilePoller struct {
	fetcher ProfileFetcher
	store   CompanyStore
	delay   time.Duration
	logger  *zap.Logger
}

// NewProfilePoller creates a new profile poller
func NewProfilePoller(fetcher ProfileFetcher, store CompanyStore, cfg config.FinnhubConfig, logger *zap.Logger) *ProfilePoller {
	return &ProfilePoller{
		fetcher: fetcher,
		store:   store,
		delay:   cfg.Delay,
		logger:  logger.Named("profiles"),
	}
}

// Poll fetches one profile per symbol and upserts them together. It
// returns the number of companies stored.
func (p *ProfilePoller) Poll(ctx context.Context, symbols []string) int {
	p.logger.Info("Fetching profiles", zap.Int("symbols", len(symbols)))

	companies := make([]model.Company, 0, len(symbols))
	for i, symbol := range symbols {
		if i > 0 && !sleep(ctx, p.delay) {
			return 0
		}

		profile, err := p.fetcher.Profile(ctx, symbol)
		if err != nil {
			p.logger.Warn("Failed to fetch profile", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		companies = append(companies, companyFromProfile(profile))
		p.logger.Debug("Updated info", zap.String("symbol", symbol))
	}

	if len(companies) == 0 {
		p.logger.Warn("No records to store")
		return 0
	}
	if !p.store.UpsertCompanies(ctx, companies) {
		p.logger.Error("Failed to store records", zap.Int("companies", len(companies)))
		return 0
	}

	p.logger.Info("Updated companies", zap.Int("companies", len(companies)))
	return len(companies)
}

func companyFromProfile(p *client.Profile) model.Company {
	marketCap := int64(p.MarketCapitalization)
	numShares := int64(p.ShareOutstanding)
	return model.Company{
		Ticker:    p.Ticker,
		Name:      p.Name,
		Website:   p.WebURL,
		Country:   p.Country,
		Logo:      p.Logo,
		Industry:  optional(p.FinnhubIndustry),
		Exchange:  optional(p.Exchange),
		Phone:     formatPhone(p.Phone),
		MarketCap: &marketCap,
		NumShares: &numShares,
	}
}

// formatPhone turns Finnhub's numeric phone text, e.g. 14089961010.0,
// into +14089961010
func formatPhone(phone string) *string {
	digits, _, _ := strings.Cut(strings.TrimSpace(phone), ".")
	if digits == "" {
		return nil
	}
	formatted := "+" + digits
	return &formatted
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
