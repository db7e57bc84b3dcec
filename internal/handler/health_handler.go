package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency answers
type Pinger interface {
	Ping(ctx context.Context) bool
}

// Health reports whether the database answers
// GET /health
func Health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !db.Ping(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}
