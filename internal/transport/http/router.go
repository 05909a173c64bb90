// Package httptransport is the admin HTTP surface: a token endpoint plus
// authenticated member listing and status management. It delegates to the
// registrar without embedding business logic.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "enroll/internal/jwt_token"
	"enroll/internal/onboarding/models"
	"enroll/internal/onboarding/registrar"
	"enroll/internal/platform/middleware"
	dErrors "enroll/pkg/domain-errors"
	"enroll/pkg/platform/sentinel"
)

// Service is the registrar surface the handlers need.
type Service interface {
	List(ctx context.Context) ([]*models.Member, error)
	FindByEntryCode(ctx context.Context, code string) (*models.Member, error)
	UpdateStatus(ctx context.Context, code string, status models.Status) (registrar.StatusOutcome, error)
}

// Handler is the thin HTTP layer over the registrar.
type Handler struct {
	log          *slog.Logger
	service      Service
	tokens       *jwttoken.JWTService
	adminHash    string
	jwtValidator middleware.JWTValidator
}

// New creates a Handler. adminHash is the bcrypt hash admin logins are
// checked against; empty disables the token endpoint.
func New(service Service, tokens *jwttoken.JWTService, adminHash string, log *slog.Logger) *Handler {
	return &Handler{
		log:          log,
		service:      service,
		tokens:       tokens,
		adminHash:    adminHash,
		jwtValidator: jwttoken.NewJWTServiceAdapter(tokens),
	}
}

// NewRouter wires all endpoints. /healthz and /metrics stay open; member
// routes require a bearer token.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.log))

	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/auth/token", h.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.log))
		r.Get("/members", h.handleListMembers)
		r.Get("/members/{code}", h.handleGetMember)
		r.Put("/members/{code}/status", h.handleUpdateStatus)
	})

	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates domain errors into consistent JSON envelopes.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		code = dErrors.CodeNotFound
	case errors.Is(err, sentinel.ErrUnchanged):
		code = dErrors.CodeConflict
	}
	writeJSON(w, toHTTPStatus(code), map[string]string{"error": string(code)})
}

func toHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
