package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/market-insights/internal/model"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxInsightsPerDatetime = 5

// ChatGenerator is the part of a chat model the insight service uses
type ChatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error)
}

// InsightStore persists generated insights
type InsightStore interface {
	SaveInsights(ctx context.Context, response model.InsightsResponse) bool
}

// InsightService turns OHLC rows into short market insights with an LLM.
// The last result is kept and returned again while the latest datetime of
// the input does not change.
type InsightService struct {
	chat     ChatGenerator
	store    InsightStore
	validate *validator.Validate
	logger   *zap.Logger

	mu        sync.Mutex
	cachedKey time.Time
	cached    *model.InsightsResponse
}

// NewInsightService creates a new insight service
func NewInsightService(chat ChatGenerator, store InsightStore, logger *zap.Logger) *InsightService {
	return &InsightService{
		chat:     chat,
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

// Generate returns insights for rows. Failures yield an empty response
// that is not cached.
func (s *InsightService) Generate(ctx context.Context, rows []model.OHLC) model.InsightsResponse {
	if len(rows) == 0 {
		return emptyInsights()
	}

	key := latestDatetime(rows)
	if cached, ok := s.lookup(key); ok {
		s.logger.Debug("returning cached insights", zap.Time("datetime", key))
		return cached
	}

	response, err := s.generate(ctx, rows)
	if err != nil {
		s.logger.Error("failed to get insights", zap.Error(err))
		return emptyInsights()
	}

	s.mu.Lock()
	if s.cached == nil || !key.Before(s.cachedKey) {
		s.cachedKey = key
		s.cached = &response
	}
	s.mu.Unlock()

	if s.store != nil && !s.store.SaveInsights(ctx, response) {
		s.logger.Warn("failed to persist insights", zap.Int("items", response.Count))
	}
	return response
}

func (s *InsightService) lookup(key time.Time) (model.InsightsResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil || !s.cachedKey.Equal(key) {
		return model.InsightsResponse{}, false
	}
	return *s.cached, true
}

func (s *InsightService) generate(ctx context.Context, rows []model.OHLC) (model.InsightsResponse, error) {
	prompt, err := userPrompt(rows)
	if err != nil {
		return model.InsightsResponse{}, err
	}

	s.logger.Info("sending prompt for insights", zap.Int("rows", len(rows)))
	reply, err := s.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return model.InsightsResponse{}, fmt.Errorf("chat model: %w", err)
	}
	if reply == nil {
		return model.InsightsResponse{}, errors.New("chat model returned no message")
	}

	response, err := s.parse(reply.Content)
	if err != nil {
		return model.InsightsResponse{}, err
	}
	s.logger.Info("received insights", zap.Int("items", response.Count))
	return response, nil
}

// rawInsights mirrors the expected reply before datetimes are parsed
type rawInsights struct {
	Count int             `json:"count"`
	Items []rawInsightSet `json:"items"`
}

type rawInsightSet struct {
	Datetime string          `json:"datetime"`
	Insights []model.Insight `json:"insights"`
}

// parse decodes the reply, trims each datetime to five insights and drops
// items that do not validate
func (s *InsightService) parse(content string) (model.InsightsResponse, error) {
	body := []byte(stripCodeFence(content))

	var raw rawInsights
	if err := json.Unmarshal(body, &raw); err != nil {
		var items []rawInsightSet
		if arrErr := json.Unmarshal(body, &items); arrErr != nil {
			return model.InsightsResponse{}, fmt.Errorf("failed to parse insights: %w", err)
		}
		raw.Items = items
	}

	response := model.InsightsResponse{Items: make([]model.Insights, 0, len(raw.Items))}
	for _, item := range raw.Items {
		datetime, err := parseDatetime(item.Datetime)
		if err != nil {
			s.logger.Warn("dropping insights with bad datetime", zap.String("datetime", item.Datetime))
			continue
		}
		insights := item.Insights
		if len(insights) > maxInsightsPerDatetime {
			insights = insights[:maxInsightsPerDatetime]
		}

		set := model.Insights{Datetime: datetime, Insights: insights}
		if err := s.validate.Struct(set); err != nil {
			s.logger.Warn("dropping invalid insights", zap.Time("datetime", datetime), zap.Error(err))
			continue
		}
		response.Items = append(response.Items, set)
	}

	if len(response.Items) == 0 {
		return model.InsightsResponse{}, errors.New("reply contained no valid insights")
	}
	response.Count = len(response.Items)
	return response, nil
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDatetime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised datetime %q", value)
}

// stripCodeFence removes a surrounding markdown code block if present
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if newline := strings.IndexByte(content, '\n'); newline >= 0 {
		content = content[newline+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(content), "```"))
}

func latestDatetime(rows []model.OHLC) time.Time {
	latest := rows[0].Datetime
	for _, row := range rows[1:] {
		if row.Datetime.After(latest) {
			latest = row.Datetime
		}
	}
	return latest
}

func emptyInsights() model.InsightsResponse {
	return model.InsightsResponse{Count: 0, Items: []model.Insights{}}
}

func userPrompt(rows []model.OHLC) (string, error) {
	data, err := json.MarshalIndent(rows, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}
	return "For the following stock data, get a minimum of 3 and a maximum of 5 insights per datetime.\n" +
		"```json\n" + string(data) + "\n```", nil
}

const systemPrompt = `You are a stock market expert who quickly spots trends and outliers in stock data.
You receive OHLC rows for one or more datetimes and return between 3 and 5 insights per datetime.

Rules for the insights:
1. Keep them simple enough for someone who only knows what a stock is.
2. Rank them by the steepness of the change first and the impact on the market second.
3. Give every insight a sentiment: positive, neutral or negative.
4. When the data spans several datetimes, describe each datetime and point out trends or shifts in trend.
5. With a single datetime, do not guess trends.
6. Do not repeat the same insight for different stocks.
7. Sound like a person, not like a report generator, and prefer a mix of sentiments.
8. Any figure you quote must match the data exactly.
9. Return exactly one item per distinct datetime in the data, never an item without insights.
10. If nothing stands out, quote figures from the data in an interesting way.

Reply with a single JSON object and nothing else, shaped like this example:
{
    "count": 2,
    "items": [
        {
            "datetime": "2023-08-18T15:30:00",
            "insights": [
                {"message": "Apple opens bullish on a volume of 6,239,136.", "sentiment": "positive"},
                {"message": "Microsoft keeps its prices steady.", "sentiment": "neutral"},
                {"message": "Meta slides to a low of 282.7.", "sentiment": "negative"}
            ]
        },
        {
            "datetime": "2023-08-18T16:30:00",
            "insights": [
                {"message": "Tesla drops to an unexpected low of 214.67.", "sentiment": "negative"},
                {"message": "Meta turns the tables with a high of 290.69.", "sentiment": "positive"},
                {"message": "Amazon barely moves this hour.", "sentiment": "neutral"}
            ]
        }
    ]
}`
