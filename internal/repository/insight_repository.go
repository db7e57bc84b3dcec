package repository

import (
	"context"

	"github.com/yourorg/market-insights/internal/model"

	"go.uber.org/zap"
)

// InsightRepository persists generated insights
type InsightRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewInsightRepository creates a new insight repository
func NewInsightRepository(store *Store, logger *zap.Logger) *InsightRepository {
	return &InsightRepository{
		store:  store,
		logger: logger,
	}
}

// SaveInsights writes every insight of the response, one row per message
func (r *InsightRepository) SaveInsights(ctx context.Context, response model.InsightsResponse) bool {
	var rows [][]interface{}
	for _, item := range response.Items {
		for _, insight := range item.Insights {
			rows = append(rows, []interface{}{item.Datetime, insight.Message, string(insight.Sentiment)})
		}
	}
	if len(rows) == 0 {
		return false
	}

	ok := r.store.Insert(ctx, "insights", []string{"datetime", "message", "sentiment"}, rows)
	if !ok {
		r.logger.Error("Failed to persist insights", zap.Int("insights", len(rows)))
	}
	return ok
}
