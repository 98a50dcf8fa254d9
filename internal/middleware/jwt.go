package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "cipher-chat/pkg/errors"

	"github.com/google/uuid"
)

// 1. Context keys (exported so handlers can read them)
type contextKey string

const (
	AccountKey contextKey = "account_id"
	CodeKey    contextKey = "unique_code"
)

// 2. What we need from the user service
type TokenValidator interface {
	ValidateToken(tokenString string) (uuid.UUID, string, error)
}

// 3. The middleware
type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// 4. The handler: bearer header first, ?token= for WebSocket upgrades that
// cannot set headers from the browser.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = strings.TrimSpace(parts[1])
			}
		}

		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			apperrors.WriteHTTP(w, apperrors.ErrMissingToken)
			return
		}

		accountID, code, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			apperrors.WriteHTTP(w, apperrors.ErrInvalidToken)
			return
		}

		ctx := WithAccount(r.Context(), accountID, code)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithAccount(ctx context.Context, accountID uuid.UUID, code string) context.Context {
	ctx = context.WithValue(ctx, AccountKey, accountID)
	return context.WithValue(ctx, CodeKey, code)
}

// AccountID returns the authenticated account of the request.
func AccountID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(AccountKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
