package user

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cipher-chat/internal/db/dbtest"
	myMiddleware "cipher-chat/internal/middleware"
	apperrors "cipher-chat/pkg/errors"
	"cipher-chat/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(NewRepository(dbtest.New(t)), "test-secret", time.Hour, logger.Nop())
	s.hashCost = bcrypt.MinCost
	return s
}

func fixedCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(codes) {
			return "", errors.New("out of codes")
		}
		c := codes[i]
		i++
		return c, nil
	}
}

func register(t *testing.T, s *Service, email string) *ProfileResponse {
	t.Helper()
	res, err := s.Register(context.Background(), &RegisterRequest{Email: email, Password: "secret123"})
	require.NoError(t, err)
	return res
}

func TestRegister_DefaultsAndCode(t *testing.T) {
	s := newTestService(t)

	res, err := s.Register(context.Background(), &RegisterRequest{
		Email:    "  Robert@Example.com ",
		Password: "secret123",
	})
	require.NoError(t, err)

	assert.Equal(t, "robert@example.com", res.Email)
	assert.Equal(t, "robert", res.DisplayName)
	assert.Len(t, res.UniqueCode, codeLength)
	for _, r := range res.UniqueCode {
		assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q", r)
	}
	assert.NotEqual(t, uuid.Nil, res.ID)
}

func TestRegister_Validation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"bad email", RegisterRequest{Email: "nope", Password: "secret123"}, apperrors.ErrInvalidEmail},
		{"short password", RegisterRequest{Email: "a@b.io", Password: "123"}, apperrors.ErrWeakPassword},
		{"long display name", RegisterRequest{Email: "a@b.io", Password: "secret123", DisplayName: strings.Repeat("x", 65)}, apperrors.ErrInvalidDisplayName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, &tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s := newTestService(t)
	register(t, s, "alice@example.com")

	_, err := s.Register(context.Background(), &RegisterRequest{Email: "ALICE@example.com", Password: "another1"})
	assert.ErrorIs(t, err, apperrors.ErrEmailTaken)
}

func TestRegister_RetriesCodeCollision(t *testing.T) {
	s := newTestService(t)
	s.newCode = fixedCodes("AAAAAA", "AAAAAA", "BBBBBB")

	first := register(t, s, "first@example.com")
	second := register(t, s, "second@example.com")

	assert.Equal(t, "AAAAAA", first.UniqueCode)
	assert.Equal(t, "BBBBBB", second.UniqueCode)
}

func TestRegister_CodeSpaceExhausted(t *testing.T) {
	s := newTestService(t)
	s.newCode = func() (string, error) { return "SAME01", nil }

	register(t, s, "first@example.com")
	_, err := s.Register(context.Background(), &RegisterRequest{Email: "second@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, apperrors.ErrCodeSpaceExhausted)
}

func TestLogin(t *testing.T) {
	s := newTestService(t)
	s.newCode = fixedCodes("XJ4Q01")
	profile := register(t, s, "bob@example.com")
	ctx := context.Background()

	t.Run("lower-case code", func(t *testing.T) {
		res, err := s.Login(ctx, &LoginRequest{Code: " xj4q01 ", Password: "secret123"})
		require.NoError(t, err)
		assert.Equal(t, "Bearer", res.TokenType)
		assert.Equal(t, 3600, res.ExpiresIn)
		assert.Equal(t, profile.ID, res.Profile.ID)

		id, code, err := s.ValidateToken(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, profile.ID, id)
		assert.Equal(t, "XJ4Q01", code)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := s.Login(ctx, &LoginRequest{Code: "XJ4Q01", Password: "wrong"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := s.Login(ctx, &LoginRequest{Code: "ZZZZZZ", Password: "secret123"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})
}

func TestValidateToken_RejectsForeignSecret(t *testing.T) {
	s := newTestService(t)
	s.newCode = fixedCodes("TOKEN1")
	register(t, s, "t@example.com")

	res, err := s.Login(context.Background(), &LoginRequest{Code: "TOKEN1", Password: "secret123"})
	require.NoError(t, err)

	other := NewService(s.repo, "other-secret", time.Hour, logger.Nop())
	_, _, err = other.ValidateToken(res.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, _, err = s.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestResolve(t *testing.T) {
	s := newTestService(t)
	s.newCode = fixedCodes("ALICE1", "BOB001")
	alice := register(t, s, "alice@example.com")
	bob := register(t, s, "bob@example.com")
	ctx := context.Background()

	id, err := s.Resolve(ctx, alice.ID, "bob001")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, id)

	_, err = s.Resolve(ctx, alice.ID, "NOPE00")
	assert.ErrorIs(t, err, apperrors.ErrCodeNotFound)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = s.Resolve(ctx, alice.ID, "ALICE1")
	assert.ErrorIs(t, err, apperrors.ErrSelfChat)
	assert.Equal(t, apperrors.CodeSelfReference, apperrors.CodeOf(err))

	_, err = s.Resolve(ctx, alice.ID, "   ")
	assert.ErrorIs(t, err, apperrors.ErrEmptyCode)
}

func TestResolve_StoreFailure(t *testing.T) {
	database := dbtest.New(t)
	s := NewService(NewRepository(database), "test-secret", time.Hour, logger.Nop())
	require.NoError(t, database.Close())

	_, err := s.Resolve(context.Background(), uuid.New(), "ABC123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrCodeNotFound)
	assert.Contains(t, []apperrors.Code{apperrors.CodeUnavailable, apperrors.CodeInternal}, apperrors.CodeOf(err))
}

func TestProfile(t *testing.T) {
	s := newTestService(t)
	created := register(t, s, "carol@example.com")

	got, err := s.Profile(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, *created, *got)

	_, err = s.Profile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestHandler_RegisterLoginMe(t *testing.T) {
	s := newTestService(t)
	s.newCode = fixedCodes("HTTP01", "HTTP02")
	h := NewHandler(s)

	r := chi.NewRouter()
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(myMiddleware.NewAuthMiddleware(s).Handle)
		r.Get("/api/me", h.Me)
		r.Get("/api/directory/{code}", h.Resolve)
	})

	do := func(method, path, body, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/api/auth/register", `{"email":"dave@example.com","password":"secret123"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	do(http.MethodPost, "/api/auth/register", `{"email":"erin@example.com","password":"secret123"}`, "")

	rr = do(http.MethodPost, "/api/auth/register", `{`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPost, "/api/auth/login", `{"code":"HTTP01","password":"bad"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(http.MethodPost, "/api/auth/login", `{"code":"HTTP01","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var login LoginResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&login))

	rr = do(http.MethodGet, "/api/me", "", login.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var me ProfileResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, "dave", me.DisplayName)
	assert.Equal(t, "HTTP01", me.UniqueCode)

	rr = do(http.MethodGet, "/api/directory/http02", "", login.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var resolved ResolveResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resolved))
	assert.Equal(t, "HTTP02", resolved.Code)

	rr = do(http.MethodGet, "/api/directory/HTTP01", "", login.AccessToken)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(http.MethodGet, "/api/directory/MISSING", "", login.AccessToken)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCodeFrom_DiscardsBiasedBytes(t *testing.T) {
	src := []byte{252, 255, 0, 35, 36, 251, 1, 2, 3, 4, 5, 6}

	code, err := codeFrom(bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "A9A9BC", code)

	_, err = codeFrom(bytes.NewReader(bytes.Repeat([]byte{254}, codeLength*2)))
	assert.Error(t, err)
}
