package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"enroll/internal/onboarding/models"
	"enroll/internal/platform/middleware"
	dErrors "enroll/pkg/domain-errors"
)

const accessTokenTTL = time.Hour

type tokenRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type memberResponse struct {
	EntryCode      string `json:"entry_code"`
	UserID         string `json:"user_id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	NationalID     string `json:"national_id,omitempty"`
	PassportNumber string `json:"passport_number,omitempty"`
	TaxPIN         string `json:"tax_pin,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	RegisteredAt   string `json:"registered_at"`
	Status         string `json:"status"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	EntryCode  string `json:"entry_code"`
	Status     string `json:"status"`
	Relational string `json:"relational"`
	Sheet      string `json:"sheet"`
}

// handleToken exchanges the admin password for a bearer token.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.adminHash == "" {
		writeError(w, dErrors.New(dErrors.CodeUnavailable, "admin access not configured"))
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.adminHash), []byte(req.Password)); err != nil {
		h.log.WarnContext(ctx, "admin login rejected",
			"request_id", middleware.GetRequestID(ctx))
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}

	token, err := h.tokens.GenerateAccessToken("admin", accessTokenTTL)
	if err != nil {
		h.log.ErrorContext(ctx, "sign access token", "error", err)
		writeError(w, dErrors.New(dErrors.CodeInternal, "token generation failed"))
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessTokenTTL.Seconds()),
	})
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.List(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "list members", "error", err)
		writeError(w, dErrors.New(dErrors.CodeInternal, "list members failed"))
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, member := range members {
		out = append(out, toMemberResponse(member))
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.service.FindByEntryCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(member))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	status := models.Status(req.Status)
	if !status.Valid() {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown status"))
		return
	}

	outcome, err := h.service.UpdateStatus(r.Context(), code, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		EntryCode:  code,
		Status:     string(status),
		Relational: string(outcome.Relational),
		Sheet:      string(outcome.Sheet),
	})
}

func toMemberResponse(m *models.Member) memberResponse {
	return memberResponse{
		EntryCode:      m.EntryCode,
		UserID:         m.UserID,
		FullName:       m.FullName,
		Email:          m.Email,
		Phone:          m.Phone,
		DateOfBirth:    m.DateOfBirth,
		NationalID:     m.NationalID,
		PassportNumber: m.PassportNumber,
		TaxPIN:         m.TaxPIN,
		FilePath:       m.FilePath,
		RegisteredAt:   m.RegisteredAt.UTC().Format(time.RFC3339),
		Status:         string(m.Status),
	}
}
