package verify

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/involy/involy/internal/pkg/errors"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/pkg/metrics"
)

// Internal failure reasons. They are logged and counted server-side but
// collapsed into the one generic authentication error before crossing the
// trust boundary, so a caller cannot probe which check failed.
var (
	ErrInvalidAssertion = errors.New("assertion rejected by identity provider")
	ErrAudienceMismatch = errors.New("assertion audience does not match client id")
	ErrExpired          = errors.New("assertion is expired")
	ErrEmailUnverified  = errors.New("provider reports email as unverified")
	ErrDataMismatch     = errors.New("claimed identity does not match introspection")
)

// Identity is the provider-attested identity produced by a successful
// verification.
type Identity struct {
	Subject   string
	Email     string
	Name      string
	AvatarURL string
}

// TokenInfo is the introspection result for a bearer assertion
type TokenInfo struct {
	Subject       string
	Email         string
	EmailVerified bool
	Audience      string
	ExpiresAt     time.Time
	Name          string
	Picture       string
}

// Introspector resolves an opaque bearer assertion against the identity
// provider.
type Introspector interface {
	Introspect(ctx context.Context, assertion string) (*TokenInfo, error)
}

// Verifier validates bearer assertions inside the trust boundary
type Verifier struct {
	introspector Introspector
	clientID     string
	logger       *logger.Logger
	now          func() time.Time
}

// New creates a verifier bound to the configured client id
func New(in Introspector, clientID string, log *logger.Logger) *Verifier {
	return &Verifier{
		introspector: in,
		clientID:     clientID,
		logger:       log,
		now:          time.Now,
	}
}

// Verify validates an assertion against the identity provider and the
// client-claimed subject and email. On any failure it returns the generic
// authentication error; no retries, and callers must not create or mutate
// user records on failure.
func (v *Verifier) Verify(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*Identity, error) {
	info, err := v.introspector.Introspect(ctx, assertion)
	if err != nil {
		return nil, v.reject(ErrInvalidAssertion, err)
	}

	if info.Audience != v.clientID {
		return nil, v.reject(ErrAudienceMismatch, nil)
	}

	if !info.ExpiresAt.After(v.now()) {
		return nil, v.reject(ErrExpired, nil)
	}

	if !info.EmailVerified {
		return nil, v.reject(ErrEmailUnverified, nil)
	}

	if info.Subject != claimedSubject || !strings.EqualFold(info.Email, claimedEmail) {
		return nil, v.reject(ErrDataMismatch, nil)
	}

	metrics.RecordVerification("ok")

	return &Identity{
		Subject:   info.Subject,
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.Picture,
	}, nil
}

// reject logs the real reason server-side and returns the collapsed error.
// The reason travels on the AppError's Internal field, which is never
// serialized to the caller.
func (v *Verifier) reject(reason error, cause error) error {
	metrics.RecordVerification(reasonLabel(reason))

	log := v.logger.With("reason", reason.Error())
	if cause != nil {
		log = log.WithError(cause)
	}
	log.Warn("Identity assertion rejected")

	appErr := apperrors.AuthFailed()
	appErr.Internal = reason
	return appErr
}

func reasonLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrAudienceMismatch):
		return "audience_mismatch"
	case errors.Is(reason, ErrExpired):
		return "expired"
	case errors.Is(reason, ErrEmailUnverified):
		return "email_unverified"
	case errors.Is(reason, ErrDataMismatch):
		return "data_mismatch"
	default:
		return "invalid_assertion"
	}
}
