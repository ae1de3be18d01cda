package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/config"
	"realtime-chat/internal/database"
	"realtime-chat/internal/models"
)

func newTestService() (*Service, *database.MemoryDB) {
	db := database.NewMemoryDB()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour}}
	return NewService(db, cfg), db
}

func TestService_RegisterAndAuthenticate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newTestService()

	// Given a freshly registered user
	resp, err := svc.Register(ctx, &models.RegisterRequest{
		Username: "  alice ",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	req.NoError(err)
	req.NotEmpty(resp.Token)
	req.Empty(resp.User.PasswordHash)

	// When the issued token is presented at handshake
	identity, err := svc.Authenticate(ctx, resp.Token)

	// Then it resolves to the stored identity
	req.NoError(err)
	req.Equal(resp.User.ID, identity.ID)
	req.Equal("alice", identity.Username)
	req.Equal("alice@example.com", identity.Email)
}

func TestService_RegisterValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Register(context.Background(), &models.RegisterRequest{
		Username: "al",
		Email:    "not-an-email",
		Password: "short",
	})

	require.Error(t, err)
}

func TestService_Login(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newTestService()
	_, err := svc.Register(ctx, &models.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "password-1"})
	req.NoError(err)

	resp, err := svc.Login(ctx, &models.LoginRequest{Email: "bob@example.com", Password: "password-1"})
	req.NoError(err)
	req.NotEmpty(resp.Token)
	req.Empty(resp.User.PasswordHash)

	_, err = svc.Login(ctx, &models.LoginRequest{Email: "bob@example.com", Password: "wrong-password"})
	req.ErrorIs(err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "password-1"})
	req.ErrorIs(err, ErrInvalidCredentials)
}

func TestService_AuthenticateRejects(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService()
	user, err := db.CreateUser(ctx, &models.User{Username: "carol", Email: "carol@example.com"})
	require.NoError(t, err)

	sign := func(claims jwt.MapClaims, secret string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	future := time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"missing token":   "",
		"garbage":         "not-a-jwt",
		"wrong secret":    sign(jwt.MapClaims{"user_id": user.ID, "exp": future}, "other-secret"),
		"expired":         sign(jwt.MapClaims{"user_id": user.ID, "exp": time.Now().Add(-time.Minute).Unix()}, "test-secret"),
		"numeric user id": sign(jwt.MapClaims{"user_id": 42, "exp": future}, "test-secret"),
		"unknown user":    sign(jwt.MapClaims{"user_id": "ghost", "exp": future}, "test-secret"),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	req.Equal("from-query", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	req.Equal("from-header", TokenFromRequest(r))
}
