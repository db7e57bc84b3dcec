package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yourorg/market-insights/internal/config"
	"github.com/yourorg/market-insights/internal/model"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrReservedUsername   = errors.New("username is reserved")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidToken       = errors.New("could not validate credentials")
	ErrRegistration       = errors.New("failed to register user")
)

// UserStore is the persistence the auth service needs
type UserStore interface {
	Exists(ctx context.Context, username, email string) bool
	GetByUsername(ctx context.Context, username string) *model.User
	Create(ctx context.Context, username, email, passwordHash string) bool
}

// InternalReviewer validates the credentials of in-cluster services
type InternalReviewer interface {
	Validate(ctx context.Context, clientName, token string) bool
}

// AuthService handles registration, login and token validation
type AuthService struct {
	users    UserStore
	reviewer InternalReviewer
	secret   []byte
	expiry   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService creates a new authentication service. reviewer may be
// nil, in which case internal credentials are always rejected.
func NewAuthService(users UserStore, reviewer InternalReviewer, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:    users,
		reviewer: reviewer,
		secret:   []byte(cfg.TokenSecret),
		expiry:   cfg.TokenExpiry(),
		logger:   logger,
		now:      time.Now,
	}
}

// HashPassword hashes a password with bcrypt
func (s *AuthService) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether password matches the bcrypt hash
func (s *AuthService) VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register creates a user. The username defaults to the email address.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) error {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = req.Email
	}
	if username == model.InternalPrincipal {
		s.logger.Warn("registration attempt for the internal user")
		return ErrReservedUsername
	}

	if s.users.Exists(ctx, username, req.Email) {
		s.logger.Warn("user tried to register again", zap.String("username", username))
		return ErrUserExists
	}

	hashed, err := s.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrRegistration, err)
	}

	if !s.users.Create(ctx, username, req.Email, hashed) {
		return ErrRegistration
	}

	s.logger.Info("registered user", zap.String("username", username))
	return nil
}

// Login checks the credentials and issues an access token
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.Token, error) {
	user := s.users.GetByUsername(ctx, username)
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if !s.VerifyPassword(user.PasswordHash, password) {
		s.logger.Debug("password verification failed", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.Username)
	if err != nil {
		return nil, err
	}
	return &model.Token{AccessToken: token, TokenType: "bearer"}, nil
}

// IssueToken signs an HS256 access token for username
func (s *AuthService) IssueToken(username string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": username,
		"exp": now.Add(s.expiry).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		s.logger.Error("failed to sign access token", zap.Error(err))
		return "", err
	}
	return signed, nil
}

// ResolveToken validates an access token and returns its subject
func (s *AuthService) ResolveToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	username, ok := claims["sub"].(string)
	// The internal principal is only granted through token review
	if !ok || username == "" || username == model.InternalPrincipal {
		return "", ErrInvalidToken
	}
	return username, nil
}

// AuthenticateInternal reports whether the caller is a service of this
// cluster
func (s *AuthService) AuthenticateInternal(ctx context.Context, clientName, token string) bool {
	if s.reviewer == nil || clientName == "" || token == "" {
		return false
	}
	return s.reviewer.Validate(ctx, clientName, token)
}
