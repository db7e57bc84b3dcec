package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourorg/market-insights/internal/config"
	"github.com/yourorg/market-insights/internal/model"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

type memoryUsers struct {
	users    map[string]*model.User
	failSave bool
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]*model.User)}
}

func (m *memoryUsers) Exists(ctx context.Context, username, email string) bool {
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return true
		}
	}
	return false
}

func (m *memoryUsers) GetByUsername(ctx context.Context, username string) *model.User {
	return m.users[username]
}

func (m *memoryUsers) Create(ctx context.Context, username, email, passwordHash string) bool {
	if m.failSave {
		return false
	}
	m.users[username] = &model.User{ID: int64(len(m.users) + 1), Username: username, Email: email, PasswordHash: passwordHash}
	return true
}

type stubReviewer map[string]string

func (s stubReviewer) Validate(ctx context.Context, clientName, token string) bool {
	return s[clientName] == token
}

func newTestAuthService(users UserStore) *AuthService {
	return NewAuthService(users, stubReviewer{"frontend": "sa-token"}, config.AuthConfig{
		TokenSecret:     "test-secret",
		TokenExpiryDays: 365,
	}, zap.NewNop())
}

func TestRegisterAndLogin(t *testing.T) {
	users := newMemoryUsers()
	auth := newTestAuthService(users)
	ctx := context.Background()

	err := auth.Register(ctx, &model.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if users.users["alice"].PasswordHash == "s3cret" {
		t.Fatal("password stored in plain text")
	}

	token, err := auth.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("unexpected login error: %v", err)
	}
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Fatalf("unexpected token %+v", token)
	}

	subject, err := auth.ResolveToken(token.AccessToken)
	if err != nil || subject != "alice" {
		t.Fatalf("expected alice, got %q (%v)", subject, err)
	}
}

func TestRegisterDefaultsUsernameToEmail(t *testing.T) {
	users := newMemoryUsers()
	auth := newTestAuthService(users)

	if err := auth.Register(context.Background(), &model.RegisterRequest{Email: "bob@example.com", Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := users.users["bob@example.com"]; !ok {
		t.Fatal("expected username to default to the email")
	}
}

func TestRegisterErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     model.RegisterRequest
		fail    bool
		wantErr error
	}{
		{
			name:    "reserved username",
			req:     model.RegisterRequest{Username: "internal", Email: "x@example.com", Password: "pw"},
			wantErr: ErrReservedUsername,
		},
		{
			name:    "existing username",
			req:     model.RegisterRequest{Username: "alice", Email: "other@example.com", Password: "pw"},
			wantErr: ErrUserExists,
		},
		{
			name:    "existing email",
			req:     model.RegisterRequest{Username: "alice2", Email: "alice@example.com", Password: "pw"},
			wantErr: ErrUserExists,
		},
		{
			name:    "store failure",
			req:     model.RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "pw"},
			fail:    true,
			wantErr: ErrRegistration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newMemoryUsers()
			users.users["alice"] = &model.User{Username: "alice", Email: "alice@example.com"}
			users.failSave = tt.fail
			auth := newTestAuthService(users)

			if err := auth.Register(context.Background(), &tt.req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	users := newMemoryUsers()
	auth := newTestAuthService(users)
	ctx := context.Background()

	if err := auth.Register(ctx, &model.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "right"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := auth.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Login(ctx, "nobody", "right"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestResolveTokenRejects(t *testing.T) {
	auth := newTestAuthService(newMemoryUsers())

	expired := newTestAuthService(newMemoryUsers())
	expired.now = func() time.Time { return time.Now().AddDate(-2, 0, 0) }
	expiredToken, err := expired.IssueToken("alice")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	other := NewAuthService(newMemoryUsers(), nil, config.AuthConfig{TokenSecret: "other", TokenExpiryDays: 1}, zap.NewNop())
	foreignToken, _ := other.IssueToken("alice")

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))

	internalSubject, _ := auth.IssueToken(model.InternalPrincipal)

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"expired":          expiredToken,
		"wrong secret":     foreignToken,
		"missing subject":  noSubject,
		"internal subject": internalSubject,
		"none algorithm":   unsigned,
		"garbage":          "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.ResolveToken(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestIssueTokenClaims(t *testing.T) {
	auth := newTestAuthService(newMemoryUsers())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	signed, err := auth.IssueToken("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims := jwt.MapClaims{}
	parser := jwt.Parser{SkipClaimsValidation: true}
	if _, err := parser.ParseWithClaims(signed, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if claims["sub"] != "alice" {
		t.Fatalf("unexpected subject %v", claims["sub"])
	}
	wantExp := float64(now.AddDate(0, 0, 365).Unix())
	if claims["exp"] != wantExp || claims["iat"] != float64(now.Unix()) {
		t.Fatalf("unexpected exp/iat %v %v", claims["exp"], claims["iat"])
	}
}

func TestAuthenticateInternal(t *testing.T) {
	auth := newTestAuthService(newMemoryUsers())
	ctx := context.Background()

	if !auth.AuthenticateInternal(ctx, "frontend", "sa-token") {
		t.Fatal("expected reviewed client to pass")
	}
	if auth.AuthenticateInternal(ctx, "frontend", "forged") {
		t.Fatal("expected forged token to fail")
	}
	if auth.AuthenticateInternal(ctx, "", "") {
		t.Fatal("expected missing headers to fail")
	}

	noReviewer := NewAuthService(newMemoryUsers(), nil, config.AuthConfig{TokenSecret: "s", TokenExpiryDays: 1}, zap.NewNop())
	if noReviewer.AuthenticateInternal(ctx, "frontend", "sa-token") {
		t.Fatal("expected rejection without a reviewer")
	}
}
