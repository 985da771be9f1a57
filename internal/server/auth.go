package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/user/tedshelf-go/internal/apperr"
	"github.com/user/tedshelf-go/internal/ingest"
	"github.com/user/tedshelf-go/internal/lang"
)

type ctxKey uint8

const (
	userKey ctxKey = iota
	requestIDKey
)

// Claims are the token claims accepted by the API. Subject is the user id.
type Claims struct {
	Lang string `json:"lang,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens
type Authenticator struct {
	secret   []byte
	resolver *lang.Resolver
}

// NewAuthenticator creates an authenticator for the shared secret
func NewAuthenticator(secret string, resolver *lang.Resolver) *Authenticator {
	return &Authenticator{secret: []byte(secret), resolver: resolver}
}

// IssueToken signs a token for userID. An empty language leaves the claim out
// and ttl <= 0 issues a token without expiry.
func (a *Authenticator) IssueToken(userID, language string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Lang: language,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Middleware authenticates the request and stores the caller in the context.
// The language comes from the lang claim, then Accept-Language.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			respondError(w, r, apperr.New(apperr.KindUnauthorized, "missing bearer token"))
			return
		}

		claims, err := a.Parse(strings.TrimSpace(tokenString))
		if err != nil {
			respondError(w, r, apperr.Wrap(apperr.KindUnauthorized, err, "invalid token"))
			return
		}

		user := ingest.User{ID: claims.Subject}
		if claims.Lang != "" {
			user.Language = a.resolver.Resolve(claims.Lang)
		} else {
			user.Language = a.resolver.ResolveAcceptLanguage(r.Header.Get("Accept-Language"))
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// UserFromContext returns the authenticated caller
func UserFromContext(ctx context.Context) (ingest.User, bool) {
	user, ok := ctx.Value(userKey).(ingest.User)
	return user, ok
}
