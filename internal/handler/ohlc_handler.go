package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/yourorg/market-insights/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OHLCStore reads and writes price bars
type OHLCStore interface {
	GetAllJoined(ctx context.Context) []model.JoinedOHLC
	InsertRecords(ctx context.Context, records []map[string]interface{}) bool
}

// OHLCHandler serves price bars
type OHLCHandler struct {
	store  OHLCStore
	logger *zap.Logger
}

// NewOHLCHandler creates a new OHLC handler
func NewOHLCHandler(store OHLCStore, logger *zap.Logger) *OHLCHandler {
	return &OHLCHandler{
		store:  store,
		logger: logger,
	}
}

// List returns every bar joined with its stored ticker name
// GET /ohlc
func (h *OHLCHandler) List(c *gin.Context) {
	rows := h.store.GetAllJoined(c.Request.Context())
	c.JSON(http.StatusOK, model.OHLCResponse{Count: len(rows), Items: rows})
}

// Insert stores a batch of bars in one statement
// POST /ohlc
func (h *OHLCHandler) Insert(c *gin.Context) {
	var records []map[string]interface{}
	decoder := json.NewDecoder(c.Request.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&records); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Expected a JSON array of OHLC records"})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No records provided."})
		return
	}

	if !h.store.InsertRecords(c.Request.Context(), records) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error inserting data."})
		return
	}

	h.logger.Info("inserted OHLC records", zap.Int("records", len(records)))
	c.JSON(http.StatusCreated, model.StatusResponse{Status: "ok"})
}
