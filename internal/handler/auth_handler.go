package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/yourorg/market-insights/internal/model"
	"github.com/yourorg/market-insights/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

// AccountService is what the auth handler needs from the auth service
type AccountService interface {
	Register(ctx context.Context, req *model.RegisterRequest) error
	Login(ctx context.Context, username, password string) (*model.Token, error)
}

// AuthHandler handles registration and token requests
type AuthHandler struct {
	authService AccountService
	logger      *zap.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService AccountService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register handles user registration from a form or a JSON body
// POST /users/register
func (h *AuthHandler) Register(c *gin.Context) {
	var request model.RegisterRequest
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	err := h.authService.Register(c.Request.Context(), &request)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, model.StatusResponse{Status: "ok"})
	case errors.Is(err, service.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": "User already registered."})
	case errors.Is(err, service.ErrReservedUsername):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to register this user."})
	default:
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Registration failed."})
	}
}

// Token exchanges OAuth2 password form credentials for a bearer token
// POST /token, POST /users/login
func (h *AuthHandler) Token(c *gin.Context) {
	var request model.LoginRequest
	if err := c.ShouldBindWith(&request, binding.Form); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Debug("login failed", zap.String("username", request.Username))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect username or password"})
			return
		}
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, token)
}
