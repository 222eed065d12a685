package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/involy/involy/internal/api/dto"
	"github.com/involy/involy/internal/api/middleware"
	"github.com/involy/involy/internal/auth"
	"github.com/involy/involy/internal/config"
	"github.com/involy/involy/internal/domain/user"
	"github.com/involy/involy/internal/pkg/errors"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/pkg/utils"
	"github.com/involy/involy/internal/pkg/validator"
	"github.com/involy/involy/internal/ratelimit"
	"github.com/involy/involy/internal/session"
	"github.com/involy/involy/internal/verify"
)

// attemptLimiter is the sliding-window limiter gating sign-in attempts at
// the boundary, the server-side pair of the client-local limiter.
type attemptLimiter interface {
	Allow(action string, limit int, window time.Duration) bool
	Remaining(action string, limit int, window time.Duration) int
}

// AuthHandler serves the identity verification boundary. Verification runs
// here, server-side, because the client cannot be trusted to self-report
// its identity.
type AuthHandler struct {
	verifier  *verify.Verifier
	users     user.Repository
	limiter   attemptLimiter
	config    *config.Config
	logger    *logger.Logger
	validator *validator.Validator
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	v *verify.Verifier,
	users user.Repository,
	limiter attemptLimiter,
	cfg *config.Config,
	log *logger.Logger,
	val *validator.Validator,
) *AuthHandler {
	return &AuthHandler{
		verifier:  v,
		users:     users,
		limiter:   limiter,
		config:    cfg,
		logger:    log,
		validator: val,
	}
}

// Verify validates a bearer assertion against the identity provider, upserts
// the user record by provider subject and returns a signed session token.
// Malformed input yields 400; every verification failure yields the same 401
// body regardless of which check failed.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request body"))
		return
	}

	if validationErrs := h.validator.Validate(req); len(validationErrs) > 0 {
		utils.WriteError(w, errors.ValidationError("Validation failed", validationErrs))
		return
	}

	action := ratelimit.Key(session.ActionSignIn, req.Email)
	limit, window := h.config.RateLimit.SignInLimit, h.config.RateLimit.SignInWindow
	if !h.limiter.Allow(action, limit, window) {
		remaining := h.limiter.Remaining(action, limit, window)
		utils.WriteError(w, errors.RateLimited("Too many sign-in attempts. Please try again later.", remaining))
		return
	}

	identity, err := h.verifier.Verify(r.Context(), req.Assertion, req.Subject, req.Email)
	if err != nil {
		// The specific reason was already logged inside the verifier;
		// only the generic failure crosses the boundary.
		utils.WriteError(w, errors.AuthFailed())
		return
	}

	u, err := h.users.UpsertBySubject(r.Context(), identity.Subject, identity.Email, identity.Name, identity.AvatarURL)
	if err != nil {
		h.logger.ErrorWithErr(err, "User upsert failed")
		utils.WriteError(w, errors.AuthFailed())
		return
	}

	token, err := auth.Mint(u.ID, u.Email, u.Subject, h.config.Auth.TokenSecret, h.config.Auth.SessionTTL, time.Now())
	if err != nil {
		h.logger.ErrorWithErr(err, "Failed to mint session token")
		utils.WriteError(w, errors.AuthFailed())
		return
	}

	h.logger.With("user_id", u.ID).Info("Identity verified")

	utils.WriteSuccess(w, http.StatusOK, dto.VerifyResponse{
		Verified: true,
		User:     toUserDTO(u),
		Token:    token,
	})
}

// Me returns the currently authenticated user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		utils.WriteError(w, errors.AuthFailed())
		return
	}

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok && appErr.Code == errors.ErrCodeNotFound {
			utils.WriteError(w, appErr)
			return
		}
		h.logger.ErrorWithErr(err, "Failed to load user")
		utils.WriteError(w, errors.Internal("Failed to load user", err))
		return
	}

	utils.WriteSuccess(w, http.StatusOK, toUserDTO(u))
}

func toUserDTO(u *user.User) dto.UserDTO {
	return dto.UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}
