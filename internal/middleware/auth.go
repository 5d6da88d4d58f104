package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "user_id"

// ErrNoSubject is returned for tokens that name no user
var ErrNoSubject = errors.New("token has no subject")

// Authenticator resolves bearer tokens to user ids. Tokens are verified
// with HMAC when a secret is configured and decoded as-is otherwise.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator creates an authenticator for secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
}

// UserID validates token and returns the user it was issued to
func (a *Authenticator) UserID(token string) (string, error) {
	claims := jwt.MapClaims{}
	var err error
	if len(a.secret) == 0 {
		_, _, err = a.parser.ParseUnverified(token, claims)
	} else {
		_, err = a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return a.secret, nil
		})
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", ErrNoSubject
}

// Middleware authenticates requests by the Authorization header. Websocket
// clients that cannot set headers may pass the token as a query parameter.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			respondError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		userID, err := a.UserID(token)
		if err != nil {
			respondError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func bearer(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	token := r.URL.Query().Get("token")
	return token, token != ""
}

// WithUserID returns a context carrying userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
