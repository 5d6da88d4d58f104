package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAuthenticator_UserID(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		token   func(t *testing.T) string
		want    string
		wantErr bool
	}{
		{
			name:   "user_id claim",
			secret: "s3cret",
			token:  func(t *testing.T) string { return sign(t, "s3cret", jwt.MapClaims{"user_id": "u1"}) },
			want:   "u1",
		},
		{
			name:   "subject claim",
			secret: "s3cret",
			token:  func(t *testing.T) string { return sign(t, "s3cret", jwt.MapClaims{"sub": "u2"}) },
			want:   "u2",
		},
		{
			name:    "wrong secret",
			secret:  "s3cret",
			token:   func(t *testing.T) string { return sign(t, "other", jwt.MapClaims{"sub": "u2"}) },
			wantErr: true,
		},
		{
			name:   "unverified without secret",
			token:  func(t *testing.T) string { return sign(t, "anything", jwt.MapClaims{"sub": "u3"}) },
			want:   "u3",
		},
		{
			name:    "no subject",
			secret:  "s3cret",
			token:   func(t *testing.T) string { return sign(t, "s3cret", jwt.MapClaims{"role": "x"}) },
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   func(*testing.T) string { return "not-a-token" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAuthenticator(tt.secret).UserID(tt.token(t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Got error %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Got user %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthenticator_Middleware(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	token := sign(t, "s3cret", jwt.MapClaims{"sub": "u1"})

	var seen string
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
	}))

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
		user   string
	}{
		{
			name: "header",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("Authorization", "Bearer "+token)
				return r
			},
			status: http.StatusOK,
			user:   "u1",
		},
		{
			name:   "query parameter",
			req:    func() *http.Request { return httptest.NewRequest(http.MethodGet, "/?token="+token, nil) },
			status: http.StatusOK,
			user:   "u1",
		},
		{
			name:   "missing",
			req:    func() *http.Request { return httptest.NewRequest(http.MethodGet, "/", nil) },
			status: http.StatusUnauthorized,
		},
		{
			name: "wrong scheme",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("Authorization", "Basic "+token)
				return r
			},
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			if rec.Code != tt.status {
				t.Errorf("Got status %d, want %d", rec.Code, tt.status)
			}
			if seen != tt.user {
				t.Errorf("Got user %q, want %q", seen, tt.user)
			}
		})
	}
}
