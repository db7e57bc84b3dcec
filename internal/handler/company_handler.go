package handler

import (
	"context"
	"net/http"

	"github.com/yourorg/market-insights/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CompanyWriter upserts company profiles
type CompanyWriter interface {
	UpsertCompanies(ctx context.Context, companies []model.Company) bool
}

// CompanyHandler handles company profile writes
type CompanyHandler struct {
	companies CompanyWriter
	logger    *zap.Logger
}

// NewCompanyHandler creates a new company handler
func NewCompanyHandler(companies CompanyWriter, logger *zap.Logger) *CompanyHandler {
	return &CompanyHandler{
		companies: companies,
		logger:    logger,
	}
}

// Upsert inserts or updates company profiles by ticker
// PUT /companies
func (h *CompanyHandler) Upsert(c *gin.Context) {
	var companies []model.Company
	if err := c.ShouldBindJSON(&companies); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(companies) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No records provided."})
		return
	}

	if !h.companies.UpsertCompanies(c.Request.Context(), companies) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error upserting companies."})
		return
	}

	c.JSON(http.StatusOK, model.StatusResponse{Status: "ok"})
}
