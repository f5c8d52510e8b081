// Package auth resolves the caller of a request from a bearer token and the
// organization header.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"driveshare/config"
	"driveshare/core/errs"
	"driveshare/core/store"
	"driveshare/core/utils"
)

type contextKey string

const CurrentContextKey contextKey = "drive.current"

// Current is the identity attached to an authenticated request.
type Current struct {
	User         *store.User
	Organization string
	Token        string
}

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type SessionManager struct {
	users  store.UsersStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewSessionManager(users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{users: users, cfg: cfg, logger: logger}
}

// Parse validates an HS256 token signed with the configured secret.
func (m *SessionManager) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.cfg.Auth.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Auth.JWTIssuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(m.cfg.Auth.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", errs.ErrUnauthenticated)
	}
	return &claims, nil
}

// Resolve authenticates r. A request without a token yields
// errs.ErrUnauthenticated so optional routes can tell it apart from a bad one.
func (m *SessionManager) Resolve(ctx context.Context, r *http.Request) (*Current, error) {
	raw := BearerToken(r)
	if raw == "" {
		return nil, errs.ErrUnauthenticated
	}
	claims, err := m.Parse(raw)
	if err != nil {
		return nil, err
	}
	user, err := m.users.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown user %s", errs.ErrUnauthenticated, claims.Subject)
	}
	return &Current{
		User:         user,
		Organization: strings.TrimSpace(r.Header.Get(m.cfg.Auth.OrgHeader)),
		Token:        raw,
	}, nil
}

func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Issue signs a token for userID. The drive only verifies tokens; Issue
// serves tooling and tests.
func Issue(secret, issuer, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}
	jti, err := utils.RandString(16)
	if err != nil {
		return "", err
	}
	now := utils.NowUTC()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        jti,
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func WithCurrent(ctx context.Context, cur *Current) context.Context {
	return context.WithValue(ctx, CurrentContextKey, cur)
}

// FromContext returns the caller stored by WithCurrent, or nil.
func FromContext(ctx context.Context) *Current {
	cur, _ := ctx.Value(CurrentContextKey).(*Current)
	return cur
}
