package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/yourorg/market-insights/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TickerReader reads the ticker reference table
type TickerReader interface {
	GetAll(ctx context.Context) []model.Ticker
	GetByTicker(ctx context.Context, ticker string) *model.Ticker
}

// TickerHandler serves the ticker reference table
type TickerHandler struct {
	tickers TickerReader
	logger  *zap.Logger
}

// NewTickerHandler creates a new ticker handler
func NewTickerHandler(tickers TickerReader, logger *zap.Logger) *TickerHandler {
	return &TickerHandler{
		tickers: tickers,
		logger:  logger,
	}
}

// List returns every ticker
// GET /tickers
func (h *TickerHandler) List(c *gin.Context) {
	tickers := h.tickers.GetAll(c.Request.Context())
	c.JSON(http.StatusOK, model.TickersResponse{Count: len(tickers), Items: tickers})
}

// Get returns one ticker
// GET /tickers/:ticker
func (h *TickerHandler) Get(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	ticker := h.tickers.GetByTicker(c.Request.Context(), symbol)
	if ticker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticker not found."})
		return
	}
	c.JSON(http.StatusOK, ticker)
}
