package handler

import (
	"context"
	"net/http"

	"github.com/yourorg/market-insights/internal/model"

	"github.com/gin-gonic/gin"
)

// MarketReader produces the market views
type MarketReader interface {
	Latest(ctx context.Context) model.LatestResponse
	Insights(ctx context.Context) model.InsightsResponse
	Movers(ctx context.Context) model.MoversResponse
}

// MarketHandler serves the derived market views
type MarketHandler struct {
	market MarketReader
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(market MarketReader) *MarketHandler {
	return &MarketHandler{market: market}
}

// Latest returns every bar at the newest datetime
// GET /latest
func (h *MarketHandler) Latest(c *gin.Context) {
	c.JSON(http.StatusOK, h.market.Latest(c.Request.Context()))
}

// Insights returns generated insights for the top movers. An empty result
// is not stored by response caches.
// GET /insights
func (h *MarketHandler) Insights(c *gin.Context) {
	insights := h.market.Insights(c.Request.Context())
	if insights.Count == 0 {
		c.Header("Cache-Control", "no-store")
	}
	c.JSON(http.StatusOK, insights)
}

// Movers returns the tickers that changed most between the last two datetimes
// GET /movers
func (h *MarketHandler) Movers(c *gin.Context) {
	c.JSON(http.StatusOK, h.market.Movers(c.Request.Context()))
}
