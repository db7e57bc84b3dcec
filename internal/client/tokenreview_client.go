package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/market-insights/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const tokenReviewPath = "/apis/authentication.k8s.io/v1/tokenreviews"

type tokenReviewSpec struct {
	Token string `json:"token"`
}

type tokenReviewStatus struct {
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
}

type tokenReview struct {
	APIVersion string            `json:"apiVersion"`
	Kind       string            `json:"kind"`
	Spec       tokenReviewSpec   `json:"spec"`
	Status     tokenReviewStatus `json:"status"`
}

// TokenReviewer checks service account tokens of in-cluster callers
// against the Kubernetes TokenReview API. A client name and token pair
// that passed a review is trusted until the cache TTL runs out; a zero TTL
// trusts it for the lifetime of the process.
type TokenReviewer struct {
	client    *resty.Client
	tokenPath string
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	validated map[string]time.Time
}

// NewTokenReviewer creates a reviewer for the cluster described by cfg
func NewTokenReviewer(cfg config.AuthConfig, logger *zap.Logger) *TokenReviewer {
	logger = logger.Named("tokenreview")

	client := resty.New()
	client.SetBaseURL(apiServerURL(cfg.Kubernetes.Host))
	client.SetTimeout(10 * time.Second)
	if cfg.Kubernetes.CAPath != "" {
		if _, err := os.Stat(cfg.Kubernetes.CAPath); err == nil {
			client.SetRootCertificate(cfg.Kubernetes.CAPath)
		} else {
			logger.Warn("Cluster CA not found, using system roots", zap.String("path", cfg.Kubernetes.CAPath))
		}
	}

	return &TokenReviewer{
		client:    client,
		tokenPath: cfg.Kubernetes.TokenPath,
		ttl:       cfg.InternalCacheTTL,
		logger:    logger,
		now:       time.Now,
		validated: make(map[string]time.Time),
	}
}

// apiServerURL accepts a bare host as exposed by KUBERNETES_SERVICE_HOST
// or a full URL
func apiServerURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimSuffix(host, "/")
	}
	return "https://" + host
}

// Validate reports whether token belongs to a service account of this
// cluster. Review failures count as invalid.
func (r *TokenReviewer) Validate(ctx context.Context, clientName, token string) bool {
	key := cacheKey(clientName, token)
	if r.cached(key) {
		return true
	}

	authenticated, err := r.review(ctx, token)
	if err != nil {
		r.logger.Warn("Token review failed", zap.String("client", clientName), zap.Error(err))
		return false
	}
	if !authenticated {
		r.logger.Warn("Received invalid token", zap.String("client", clientName))
		return false
	}

	r.mu.Lock()
	r.validated[key] = r.now()
	r.mu.Unlock()

	r.logger.Info("Received valid token", zap.String("client", clientName))
	return true
}

func (r *TokenReviewer) cached(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	validatedAt, ok := r.validated[key]
	if !ok {
		return false
	}
	if r.ttl > 0 && r.now().Sub(validatedAt) >= r.ttl {
		delete(r.validated, key)
		return false
	}
	return true
}

// cacheKey binds a cached review to the exact token that passed it
func cacheKey(clientName, token string) string {
	sum := sha256.Sum256([]byte(token))
	return clientName + ":" + hex.EncodeToString(sum[:])
}

func (r *TokenReviewer) review(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, errors.New("empty token")
	}

	// Projected service account tokens rotate, so read it per review
	credential, err := os.ReadFile(r.tokenPath)
	if err != nil {
		return false, fmt.Errorf("failed to read service account token: %w", err)
	}

	var result tokenReview
	resp, err := r.client.R().
		SetContext(ctx).
		SetAuthToken(strings.TrimSpace(string(credential))).
		SetBody(tokenReview{
			APIVersion: "authentication.k8s.io/v1",
			Kind:       "TokenReview",
			Spec:       tokenReviewSpec{Token: token},
		}).
		SetResult(&result).
		Post(tokenReviewPath)
	if err != nil {
		return false, err
	}
	if resp.IsError() {
		return false, fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Status.Error != "" {
		return false, errors.New(result.Status.Error)
	}
	return result.Status.Authenticated, nil
}
