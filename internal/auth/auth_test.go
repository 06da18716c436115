package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("1234")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if ok, err := ComparePassword(hash, "1234"); !ok || err != nil {
		t.Fatalf("ComparePassword(correct) = %v, %v", ok, err)
	}
	if ok, err := ComparePassword(hash, "12345"); ok || err != nil {
		t.Fatalf("ComparePassword(wrong) = %v, %v", ok, err)
	}
	if _, err := ComparePassword("not-a-hash", "1234"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestTokenIssueAndParse(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	tok, err := m.Issue(42, "ana")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	id, claims, err := m.Parse(tok.Value)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id != 42 || claims.Name != "ana" || claims.ID == "" {
		t.Fatalf("unexpected claims id=%d %+v", id, claims)
	}

	other := NewTokenManager("another-secret", time.Hour)
	if _, _, err := other.Parse(tok.Value); err != ErrInvalidToken {
		t.Fatalf("foreign signature: got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	tok, err := m.Issue(1, "ana")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, _, err := m.Parse(tok.Value); err != ErrInvalidToken {
		t.Fatalf("expired token: got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	tok, _ := m.Issue(7, "ana")

	var seen int64
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + tok.Value, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/buckets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if seen != 7 {
		t.Fatalf("user id in context = %d, want 7", seen)
	}
}
