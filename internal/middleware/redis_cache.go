package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const defaultCacheDuration = time.Hour

// CacheConfig contains configuration for the Redis cache
type CacheConfig struct {
	Enabled         bool
	DefaultDuration time.Duration
	PrefixKey       string
}

// RedisCache caches successful GET responses in Redis unless the handler
// marks them Cache-Control: no-store. A nil client or an unreachable Redis
// leaves requests uncached.
func RedisCache(redisClient *redis.Client, config CacheConfig, logger *zap.Logger) gin.HandlerFunc {
	duration := config.DefaultDuration
	if duration <= 0 {
		duration = defaultCacheDuration
	}

	return func(c *gin.Context) {
		if !config.Enabled || redisClient == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		cacheKey := generateCacheKey(config.PrefixKey, c.Request.URL.RequestURI())
		ctx := c.Request.Context()

		cachedResponse, err := redisClient.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			logger.Debug("Cache hit", zap.String("key", cacheKey))
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", cachedResponse)
			c.Abort()
			return
		case !errors.Is(err, redis.Nil):
			logger.Warn("Cache lookup failed", zap.String("key", cacheKey), zap.Error(err))
			c.Next()
			return
		}

		logger.Debug("Cache miss", zap.String("key", cacheKey))
		c.Header("X-Cache", "MISS")

		// Capture the response
		writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		if c.Writer.Status() == http.StatusOK && writer.body.Len() > 0 && c.Writer.Header().Get("Cache-Control") != "no-store" {
			if err := redisClient.Set(ctx, cacheKey, writer.body.Bytes(), duration).Err(); err != nil {
				logger.Warn("Failed to cache response", zap.String("key", cacheKey), zap.Error(err))
			}
		}
	}
}

// FlushOnSuccess drops every cached response under prefix after a request
// that changed the data completes with a 2xx status.
func FlushOnSuccess(redisClient *redis.Client, prefix string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if redisClient == nil || status < 200 || status >= 300 {
			return
		}
		if err := FlushCache(c.Request.Context(), redisClient, prefix); err != nil {
			logger.Warn("Failed to flush cache", zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

// FlushCache removes every cache entry under prefix
func FlushCache(ctx context.Context, redisClient *redis.Client, prefix string) error {
	var keys []string
	iter := redisClient.Scan(ctx, 0, prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return redisClient.Del(ctx, keys...).Err()
}

// generateCacheKey creates a unique cache key based on the request URI
func generateCacheKey(prefix, requestURI string) string {
	hash := sha256.Sum256([]byte(requestURI))
	return prefix + ":" + hex.EncodeToString(hash[:])
}

// responseWriter is a custom response writer that captures the response
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
