package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-chat-engine/internal/user"
)

type staticValidator map[string]user.Identity

func (v staticValidator) ValidateToken(token string) (user.Identity, error) {
	id, ok := v[token]
	if !ok {
		return user.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

func TestAuthMiddleware(t *testing.T) {
	am := NewAuthMiddleware(staticValidator{"good": {UserID: "1", Username: "alice"}})
	var seen user.Identity
	h := am.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = user.FromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer good", "", http.StatusOK},
		{"lowercase scheme", "bearer good", "", http.StatusOK},
		{"query token", "", "good", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"invalid", "Bearer bad", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = user.Identity{}
			req := httptest.NewRequest(http.MethodGet, "/ws?token="+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK && seen.Username != "alice" {
				t.Fatalf("identity not propagated: %+v", seen)
			}
		})
	}
}
