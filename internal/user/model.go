package user

import (
	"cipher-chat/internal/models"

	"github.com/google/uuid"
)

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// LoginRequest logs in with the shareable unique code instead of the email.
type LoginRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

type ProfileResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email,omitempty"`
	UniqueCode  string    `json:"unique_code"`
	DisplayName string    `json:"display_name"`
}

type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"`
	Profile     ProfileResponse `json:"profile"`
}

type ResolveResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Code      string    `json:"code"`
}

func newProfileResponse(acc *models.Account, p *models.Profile) ProfileResponse {
	res := ProfileResponse{
		ID:          p.AccountID,
		UniqueCode:  p.UniqueCode,
		DisplayName: p.DisplayName,
	}
	if acc != nil {
		res.Email = acc.Email
	}
	return res
}
