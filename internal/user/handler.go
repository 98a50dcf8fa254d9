package user

import (
	"encoding/json"
	"net/http"

	myMiddleware "cipher-chat/internal/middleware"
	apperrors "cipher-chat/pkg/errors"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, apperrors.InvalidArg("malformed request body"))
		return
	}

	res, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, apperrors.InvalidArg("malformed request body"))
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := myMiddleware.AccountID(r.Context())
	if !ok {
		apperrors.WriteHTTP(w, apperrors.ErrMissingToken)
		return
	}

	res, err := h.Service.Profile(r.Context(), accountID)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Resolve looks a unique code up in the directory: GET /api/directory/{code}
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	accountID, ok := myMiddleware.AccountID(r.Context())
	if !ok {
		apperrors.WriteHTTP(w, apperrors.ErrMissingToken)
		return
	}

	code := NormalizeCode(chi.URLParam(r, "code"))
	otherID, err := h.Service.Resolve(r.Context(), accountID, code)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ResolveResponse{AccountID: otherID, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
