package service

import (
	"context"
	"sort"

	"github.com/yourorg/market-insights/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MoverLimit is the number of tickers kept by RankMovers
const MoverLimit = 10

// MarketStore serves the OHLC views the market service derives from
type MarketStore interface {
	LatestOHLC(ctx context.Context) []model.OHLC
	RecentWindow(ctx context.Context) []model.OHLCWindowRow
}

// ProfileStore looks up company profiles
type ProfileStore interface {
	GetByTickers(ctx context.Context, tickers []string) map[string]model.Company
}

// InsightGenerator produces insights for a set of OHLC rows
type InsightGenerator interface {
	Generate(ctx context.Context, rows []model.OHLC) model.InsightsResponse
}

// MarketService builds the latest, movers and insights views
type MarketService struct {
	market   MarketStore
	profiles ProfileStore
	insights InsightGenerator
	logger   *zap.Logger
}

// NewMarketService creates a new market service
func NewMarketService(market MarketStore, profiles ProfileStore, insights InsightGenerator, logger *zap.Logger) *MarketService {
	return &MarketService{
		market:   market,
		profiles: profiles,
		insights: insights,
		logger:   logger,
	}
}

// Latest returns the bars of the most recent datetime
func (s *MarketService) Latest(ctx context.Context) model.LatestResponse {
	rows := s.market.LatestOHLC(ctx)
	return model.LatestResponse{Count: len(rows), Items: rows}
}

// Insights feeds the top movers' bars at both window datetimes to the
// insight generator
func (s *MarketService) Insights(ctx context.Context) model.InsightsResponse {
	movers := RankMovers(s.market.RecentWindow(ctx), MoverLimit)
	if len(movers) == 0 {
		return emptyInsights()
	}

	rows := make([]model.OHLC, 0, 2*len(movers))
	for _, m := range movers {
		rows = append(rows, m.Previous())
	}
	for _, m := range movers {
		rows = append(rows, m.OHLC)
	}
	return s.insights.Generate(ctx, rows)
}

// Movers returns the top movers with their profile, current values and
// change since the previous datetime
func (s *MarketService) Movers(ctx context.Context) model.MoversResponse {
	ranked := RankMovers(s.market.RecentWindow(ctx), MoverLimit)

	tickers := make([]string, len(ranked))
	for i, row := range ranked {
		tickers[i] = row.Ticker
	}
	profiles := s.profiles.GetByTickers(ctx, tickers)

	items := make([]model.Mover, 0, len(ranked))
	for _, row := range ranked {
		profile, ok := profiles[row.Ticker]
		if !ok {
			profile = model.Company{Ticker: row.Ticker, Name: row.Name}
		}
		items = append(items, model.Mover{
			Profile:        profile,
			CurrentMetrics: metricsOf(row.OHLC),
			MetricDeltas:   metricDeltas(row.OHLC, row.Previous()),
		})
	}

	s.logger.Debug("ranked movers", zap.Int("movers", len(items)))
	return model.MoversResponse{Count: len(items), Items: items}
}

type rankedRow struct {
	row   model.OHLCWindowRow
	ratio decimal.Decimal
}

// RankMovers orders rows by |Σcurrent − Σprevious| / Σprevious over open,
// high, low, close and volume, largest first with ties broken by ticker,
// and keeps at most limit rows. Rows without a previous bar, or whose
// previous sum is zero, have no ratio and are left out.
func RankMovers(rows []model.OHLCWindowRow, limit int) []model.OHLCWindowRow {
	ranked := make([]rankedRow, 0, len(rows))
	for _, row := range rows {
		if !row.HasPrevious() {
			continue
		}
		previous := metricSum(row.Previous())
		if previous.IsZero() {
			continue
		}
		ratio := metricSum(row.OHLC).Sub(previous).Abs().Div(previous)
		ranked = append(ranked, rankedRow{row: row, ratio: ratio})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].ratio.Cmp(ranked[j].ratio); c != 0 {
			return c > 0
		}
		return ranked[i].row.Ticker < ranked[j].row.Ticker
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	result := make([]model.OHLCWindowRow, len(ranked))
	for i, r := range ranked {
		result[i] = r.row
	}
	return result
}

func metricSum(bar model.OHLC) decimal.Decimal {
	return decimal.NewFromFloat(bar.Open).
		Add(decimal.NewFromFloat(bar.High)).
		Add(decimal.NewFromFloat(bar.Low)).
		Add(decimal.NewFromFloat(bar.Close)).
		Add(decimal.NewFromInt(bar.Volume))
}

func metricsOf(bar model.OHLC) model.Metrics {
	return model.Metrics{
		Open:   bar.Open,
		High:   bar.High,
		Low:    bar.Low,
		Close:  bar.Close,
		Volume: bar.Volume,
	}
}

// metricDeltas returns current - previous per field, exact in decimal
// (151.2 - 150.1 is 1.1)
func metricDeltas(current, previous model.OHLC) model.Metrics {
	delta := func(a, b float64) float64 {
		f, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Float64()
		return f
	}
	return model.Metrics{
		Open:   delta(current.Open, previous.Open),
		High:   delta(current.High, previous.High),
		Low:    delta(current.Low, previous.Low),
		Close:  delta(current.Close, previous.Close),
		Volume: current.Volume - previous.Volume,
	}
}
