package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/yourorg/market-insights/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// PrincipalKey holds the authenticated principal in the gin context
	PrincipalKey = "principal"

	internalClientHeader = "X-Internal-Client"
	internalTokenHeader  = "X-Internal-Token"
)

// Authenticator resolves the caller of a request
type Authenticator interface {
	AuthenticateInternal(ctx context.Context, clientName, token string) bool
	ResolveToken(token string) (string, error)
}

// Authenticate accepts either a reviewed in-cluster service or a bearer
// token and stores the principal under PrincipalKey
func Authenticate(auth Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientName := c.GetHeader(internalClientHeader)
		token := c.GetHeader(internalTokenHeader)
		if clientName != "" && token != "" && auth.AuthenticateInternal(c.Request.Context(), clientName, token) {
			c.Set(PrincipalKey, model.InternalPrincipal)
			c.Next()
			return
		}

		bearer, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}

		username, err := auth.ResolveToken(bearer)
		if err != nil {
			logger.Debug("token validation failed", zap.Error(err))
			unauthorized(c)
			return
		}

		c.Set(PrincipalKey, username)
		c.Next()
	}
}

// RequireInternal rejects every principal but the internal one
func RequireInternal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Principal(c) != model.InternalPrincipal {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not enough permissions"})
			return
		}
		c.Next()
	}
}

// Principal returns the authenticated principal, empty when there is none
func Principal(c *gin.Context) string {
	return c.GetString(PrincipalKey)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
}
