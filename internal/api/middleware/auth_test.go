package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/involy/involy/internal/auth"
)

const testSecret = "test-secret"

func protectedEcho(t *testing.T, wantUserID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r)
		if !ok {
			t.Error("user id missing from context inside protected handler")
		}
		if userID != wantUserID {
			t.Errorf("user id = %q, want %q", userID, wantUserID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	token, err := auth.Mint("user-1", "ada@example.com", "sub-1", testSecret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	handler := AuthMiddleware(testSecret)(protectedEcho(t, "user-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	expired, err := auth.Mint("user-1", "ada@example.com", "sub-1", testSecret, time.Hour, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	wrongSecret, err := auth.Mint("user-1", "ada@example.com", "sub-1", "other-secret", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "wrong scheme", header: "Basic abc123"},
		{name: "bare token", header: "sometoken"},
		{name: "garbage token", header: "Bearer not.a.token"},
		{name: "expired token", header: "Bearer " + expired},
		{name: "wrong secret", header: "Bearer " + wrongSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("protected handler reached without valid token")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}
