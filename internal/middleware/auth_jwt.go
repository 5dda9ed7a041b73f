package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "donate-on-flow"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenClaims identify the caller. Sub is "tg:<telegram id>" for mini-app
// users or "wallet:<session id>" for browser users; Sid links a wallet session.
type TokenClaims struct {
	Sub        string `json:"sub"`
	TelegramID int64  `json:"tg,omitempty"`
	Username   string `json:"usr,omitempty"`
	SessionID  string `json:"sid,omitempty"`
	Locale     string `json:"locale,omitempty"`
	IssuedAt   int64  `json:"iat"`
	Exp        int64  `json:"exp"`
	Issuer     string `json:"iss"`
}

func (c TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) { return numericDate(c.Exp), nil }
func (c TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) { return numericDate(c.IssuedAt), nil }
func (c TokenClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c TokenClaims) GetIssuer() (string, error) { return c.Issuer, nil }
func (c TokenClaims) GetSubject() (string, error) { return c.Sub, nil }
func (c TokenClaims) GetAudience() (jwt.ClaimStrings, error) { return nil, nil }

func numericDate(unix int64) *jwt.NumericDate {
	if unix == 0 {
		return nil
	}
	return jwt.NewNumericDate(time.Unix(unix, 0))
}

type identityKey struct{}

func SignJWT(secret string, claims TokenClaims) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is required")
	}
	if claims.Issuer == "" {
		claims.Issuer = tokenIssuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// IssueToken signs claims valid for ttl from now.
func IssueToken(secret string, claims TokenClaims, ttl time.Duration, now time.Time) (string, time.Time, error) {
	expires := now.Add(ttl).UTC()
	claims.IssuedAt = now.Unix()
	claims.Exp = expires.Unix()
	token, err := SignJWT(secret, claims)
	return token, expires, err
}

func VerifyJWT(secret, token string, now time.Time) (*TokenClaims, error) {
	var claims TokenClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrInvalidToken
	case claims.Sub == "":
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AuthJWT rejects requests without a valid bearer token.
func AuthJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "missing authorization")
				return
			}
			claims, err := VerifyJWT(secret, token, time.Now())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches the caller identity when a valid token is present
// and lets anonymous requests through.
func OptionalAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if claims, err := VerifyJWT(secret, token, time.Now()); err == nil {
					r = r.WithContext(withClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withClaims(ctx context.Context, claims *TokenClaims) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, *claims)
	if claims.Locale != "" {
		ctx = context.WithValue(ctx, LocaleKey, claims.Locale)
	}
	return ctx
}

// ClaimsFromContext returns the verified caller claims, if any.
func ClaimsFromContext(ctx context.Context) (TokenClaims, bool) {
	c, ok := ctx.Value(identityKey{}).(TokenClaims)
	return c, ok
}

func ContextWithClaims(ctx context.Context, claims TokenClaims) context.Context {
	return withClaims(ctx, &claims)
}
