package myMiddleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fakeValidator struct {
	token string
	id    uuid.UUID
}

func (f fakeValidator) ValidateToken(tokenString string) (uuid.UUID, string, error) {
	if tokenString != f.token {
		return uuid.Nil, "", errors.New("bad token")
	}
	return f.id, "AAAA11", nil
}

func TestAuthMiddleware(t *testing.T) {
	id := uuid.New()
	am := NewAuthMiddleware(fakeValidator{token: "good", id: id})

	var seen uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AccountID(r.Context())
		assert.Equal(t, "AAAA11", r.Context().Value(CodeKey))
		w.WriteHeader(http.StatusNoContent)
	})
	h := am.Handle(next)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer good", "", http.StatusNoContent},
		{"lowercase scheme", "bearer good", "", http.StatusNoContent},
		{"query fallback", "", "?token=good", http.StatusNoContent},
		{"missing", "", "", http.StatusUnauthorized},
		{"invalid", "Bearer bad", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = uuid.Nil
			req := httptest.NewRequest(http.MethodGet, "/api/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, id, seen)
			}
		})
	}
}

func TestAccountID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := AccountID(req.Context())
	assert.False(t, ok)
}
