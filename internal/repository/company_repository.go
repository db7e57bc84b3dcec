package repository

import (
	"context"

	"github.com/yourorg/market-insights/internal/model"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

var companyColumns = []string{
	"ticker", "name", "website", "country", "logo",
	"industry", "exchange", "phone", "market_cap", "num_shares",
}

// CompanyRepository handles company profiles
type CompanyRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(store *Store, logger *zap.Logger) *CompanyRepository {
	return &CompanyRepository{
		store:  store,
		logger: logger,
	}
}

// UpsertCompanies inserts unknown tickers and updates known ones in place,
// in a single statement
func (r *CompanyRepository) UpsertCompanies(ctx context.Context, companies []model.Company) bool {
	if len(companies) == 0 {
		return false
	}

	// A statement may touch each key only once; the last profile wins
	index := make(map[string]int, len(companies))
	rows := make([][]interface{}, 0, len(companies))
	for _, c := range companies {
		row := []interface{}{
			c.Ticker, c.Name, c.Website, c.Country, c.Logo,
			c.Industry, c.Exchange, c.Phone, c.MarketCap, c.NumShares,
		}
		if i, seen := index[c.Ticker]; seen {
			rows[i] = row
			continue
		}
		index[c.Ticker] = len(rows)
		rows = append(rows, row)
	}

	ok := r.store.Upsert(ctx, "companies", companyColumns, "ticker", rows)
	if !ok {
		r.logger.Error("Failed to upsert companies", zap.Int("companies", len(rows)))
	}
	return ok
}

// GetByTickers returns the stored profiles of the given tickers keyed by ticker
func (r *CompanyRepository) GetByTickers(ctx context.Context, tickers []string) map[string]model.Company {
	result := make(map[string]model.Company, len(tickers))
	if len(tickers) == 0 {
		return result
	}

	query := `
		SELECT ticker, name, website, country, logo, industry, exchange,
			phone, market_cap, num_shares
		FROM companies
		WHERE ticker = ANY($1)`

	companies := []model.Company{}
	if !r.store.FetchAll(ctx, &companies, query, pq.Array(tickers)) {
		return result
	}
	for _, c := range companies {
		result[c.Ticker] = c
	}
	return result
}
