package repository

import (
	"context"

	"github.com/yourorg/market-insights/internal/model"

	"go.uber.org/zap"
)

// UserRepository handles database operations for users
type UserRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(store *Store, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		store:  store,
		logger: logger,
	}
}

// FindByUsernameOrEmail returns a user matching either field, nil otherwise
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) *model.User {
	var user model.User
	query := `
		SELECT id, username, email, password, created_at
		FROM users
		WHERE username = $1 OR email = $2
		LIMIT 1`
	if !r.store.FetchOne(ctx, &user, query, username, email) {
		return nil
	}
	return &user
}

// Exists reports whether the username or the email is already taken
func (r *UserRepository) Exists(ctx context.Context, username, email string) bool {
	return r.FindByUsernameOrEmail(ctx, username, email) != nil
}

// GetByUsername returns a user by username, nil when absent
func (r *UserRepository) GetByUsername(ctx context.Context, username string) *model.User {
	var user model.User
	query := `SELECT id, username, email, password, created_at FROM users WHERE username = $1`
	if !r.store.FetchOne(ctx, &user, query, username) {
		return nil
	}
	return &user
}

// Create stores a new user with an already hashed password
func (r *UserRepository) Create(ctx context.Context, username, email, passwordHash string) bool {
	ok := r.store.Exec(ctx,
		`INSERT INTO users (username, email, password) VALUES ($1, $2, $3)`,
		username, email, passwordHash)
	if !ok {
		r.logger.Error("failed to create user", zap.String("username", username))
	}
	return ok
}
