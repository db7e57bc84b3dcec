package repository

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/yourorg/market-insights/internal/model"

	"go.uber.org/zap"
)

const ohlcTable = "ohlc"

// OHLCRepository handles the price bar table
type OHLCRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewOHLCRepository creates a new OHLC repository
func NewOHLCRepository(store *Store, logger *zap.Logger) *OHLCRepository {
	return &OHLCRepository{
		store:  store,
		logger: logger,
	}
}

// GetAllJoined returns every bar together with the name stored for its ticker
func (r *OHLCRepository) GetAllJoined(ctx context.Context) []model.JoinedOHLC {
	query := `
		SELECT o."datetime", o."timestamp", o.ticker, o.name, o.open, o.high,
			o.low, o.close, o.volume, o.source, t.name AS stored_company_name
		FROM ohlc o
		JOIN tickers t ON t.ticker = o.ticker
		ORDER BY o."datetime", o.ticker`

	rows := []model.JoinedOHLC{}
	if !r.store.FetchAll(ctx, &rows, query) {
		return []model.JoinedOHLC{}
	}
	return rows
}

// InsertRecords inserts loosely typed bars. The column list is taken from
// the first record; every record is expected to carry the same keys. A
// duplicate (datetime, ticker) or an unknown ticker fails the whole batch.
func (r *OHLCRepository) InsertRecords(ctx context.Context, records []map[string]interface{}) bool {
	if len(records) == 0 {
		return false
	}

	columns := make([]string, 0, len(records[0]))
	for key := range records[0] {
		columns = append(columns, key)
	}
	sort.Strings(columns)

	rows := make([][]interface{}, 0, len(records))
	for _, record := range records {
		row := make([]interface{}, len(columns))
		for i, column := range columns {
			row[i] = sqlValue(record[column])
		}
		rows = append(rows, row)
	}

	ok := r.store.Insert(ctx, ohlcTable, columns, rows)
	if !ok {
		r.logger.Error("Failed to insert OHLC records", zap.Int("records", len(records)))
	}
	return ok
}

// sqlValue converts decoded JSON values into driver arguments. Numbers are
// passed as their literal text so the column type decides the conversion.
func sqlValue(v interface{}) interface{} {
	switch value := v.(type) {
	case json.Number:
		return value.String()
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		return string(encoded)
	default:
		return value
	}
}
