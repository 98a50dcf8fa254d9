package user

import (
	"context"
	"crypto/rand"
	"io"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"cipher-chat/internal/db"
	"cipher-chat/internal/models"
	apperrors "cipher-chat/pkg/errors"
	"cipher-chat/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeLength        = 6
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts      = 5
	minPasswordLength = 6
	maxDisplayName    = 64
	tokenIssuer       = "cipher-chat"
)

type Service struct {
	repo      *Repository
	jwtSecret string
	tokenTTL  time.Duration
	hashCost  int
	logger    *logger.Logger
	now       func() time.Time
	newCode   func() (string, error)
}

type MyJWTClaims struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
		tokenTTL:  ttl,
		hashCost:  bcrypt.DefaultCost,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
		newCode:   generateCode,
	}
}

// Register creates an account and its profile with a freshly assigned unique
// code. The display name defaults to the local part of the email.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*ProfileResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, apperrors.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperrors.ErrWeakPassword
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = email[:strings.Index(email, "@")]
	}
	if utf8.RuneCountInString(displayName) > maxDisplayName {
		return nil, apperrors.ErrInvalidDisplayName
	}

	if exists, err := s.repo.EmailExists(ctx, email); err != nil {
		return nil, s.storeError("checking email", err)
	} else if exists {
		return nil, apperrors.ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, apperrors.ErrRegistrationFailed(err)
	}

	now := s.now()
	acc := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hashed),
		CreatedAt:    now,
	}

	// A collision on the code is retried with a new one; a collision on the
	// email means someone registered it concurrently.
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, apperrors.ErrRegistrationFailed(err)
		}
		p := &models.Profile{
			AccountID:   acc.ID,
			UniqueCode:  code,
			DisplayName: displayName,
			CreatedAt:   now,
		}

		err = s.repo.CreateAccount(ctx, acc, p)
		if err == nil {
			s.logger.Info("account registered", "account_id", acc.ID, "code", code)
			res := newProfileResponse(acc, p)
			return &res, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, s.storeError("creating account", err)
		}
		if exists, checkErr := s.repo.EmailExists(ctx, email); checkErr == nil && exists {
			return nil, apperrors.ErrEmailTaken
		}
		s.logger.Warn("unique code collision, retrying", "attempt", attempt+1)
	}
	return nil, apperrors.ErrCodeSpaceExhausted
}

// Login authenticates with unique code and password. Unknown codes and wrong
// passwords produce the same error.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	p, err := s.repo.GetProfileByCode(ctx, NormalizeCode(req.Code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, s.storeError("loading profile", err)
	}

	acc, err := s.repo.GetAccountByID(ctx, p.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, s.storeError("loading account", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		AccountID: acc.ID.String(),
		Code:      p.UniqueCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   acc.ID.String(),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.tokenTTL)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not sign token", err)
	}

	return &LoginResponse{
		AccessToken: ss,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		Profile:     newProfileResponse(acc, p),
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (uuid.UUID, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))

	if err != nil || !token.Valid {
		return uuid.Nil, "", apperrors.ErrInvalidToken
	}

	id, err := uuid.Parse(claims.AccountID)
	if err != nil {
		return uuid.Nil, "", apperrors.ErrInvalidToken
	}
	return id, claims.Code, nil
}

// Resolve is the identity directory lookup: an exact, case-insensitive match
// of code against the unique codes. Resolving to the caller is reported as a
// self reference, distinct from not found.
func (s *Service) Resolve(ctx context.Context, callerID uuid.UUID, code string) (uuid.UUID, error) {
	code = NormalizeCode(code)
	if code == "" {
		return uuid.Nil, apperrors.ErrEmptyCode
	}

	p, err := s.repo.GetProfileByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return uuid.Nil, apperrors.ErrCodeNotFound
		}
		return uuid.Nil, s.storeError("resolving code", err)
	}
	if p.AccountID == callerID {
		return uuid.Nil, apperrors.ErrSelfChat
	}
	return p.AccountID, nil
}

func (s *Service) Profile(ctx context.Context, accountID uuid.UUID) (*ProfileResponse, error) {
	acc, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, s.storeError("loading account", err)
	}
	p, err := s.repo.GetProfileByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, s.storeError("loading profile", err)
	}
	res := newProfileResponse(acc, p)
	return &res, nil
}

func (s *Service) storeError(op string, err error) error {
	s.logger.Error("store error", "op", op, "err", err)
	if db.IsUnavailable(err) {
		return apperrors.Unavailable(err)
	}
	return apperrors.Wrap(apperrors.CodeInternal, "internal server error", err)
}

// NormalizeCode upper-cases and trims a user-typed code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// codeByteLimit is the largest multiple of len(codeAlphabet) that fits in a
// byte. Bytes at or above it are discarded so every symbol is equally likely.
const codeByteLimit = 256 - 256%len(codeAlphabet)

func generateCode() (string, error) {
	return codeFrom(rand.Reader)
}

func codeFrom(r io.Reader) (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(out) < codeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= codeByteLimit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out), nil
}
