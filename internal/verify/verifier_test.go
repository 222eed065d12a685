package verify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/involy/involy/internal/pkg/errors"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/testutil"
	. "github.com/involy/involy/internal/verify"
)

const testClientID = "involy-web.apps.example.com"

func validInfo() *TokenInfo {
	return &TokenInfo{
		Subject:       "sub-1",
		Email:         "ada@example.com",
		EmailVerified: true,
		Audience:      testClientID,
		ExpiresAt:     time.Now().Add(time.Hour),
		Name:          "Ada Lovelace",
		Picture:       "https://cdn.example.com/ada.png",
	}
}

func newTestVerifier(in Introspector) *Verifier {
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	return New(in, testClientID, log)
}

func TestVerifier_Success(t *testing.T) {
	v := newTestVerifier(&testutil.MockIntrospector{Info: validInfo()})

	id, err := v.Verify(context.Background(), "assertion", "sub-1", "ada@example.com")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.Subject != "sub-1" || id.Email != "ada@example.com" {
		t.Errorf("identity = %+v", id)
	}
	if id.Name != "Ada Lovelace" || id.AvatarURL != "https://cdn.example.com/ada.png" {
		t.Errorf("profile fields not carried over: %+v", id)
	}
}

func TestVerifier_EmailComparisonIsCaseInsensitive(t *testing.T) {
	v := newTestVerifier(&testutil.MockIntrospector{Info: validInfo()})

	if _, err := v.Verify(context.Background(), "assertion", "sub-1", "Ada@Example.COM"); err != nil {
		t.Errorf("Verify() rejected a case-variant of the same email: %v", err)
	}
}

func TestVerifier_Failures(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*TokenInfo)
		subject    string
		email      string
		wantReason error
	}{
		{
			name:       "audience mismatch",
			mutate:     func(i *TokenInfo) { i.Audience = "some-other-app.apps.example.com" },
			subject:    "sub-1",
			email:      "ada@example.com",
			wantReason: ErrAudienceMismatch,
		},
		{
			name:       "expired assertion",
			mutate:     func(i *TokenInfo) { i.ExpiresAt = time.Now().Add(-time.Minute) },
			subject:    "sub-1",
			email:      "ada@example.com",
			wantReason: ErrExpired,
		},
		{
			name:       "unverified email",
			mutate:     func(i *TokenInfo) { i.EmailVerified = false },
			subject:    "sub-1",
			email:      "ada@example.com",
			wantReason: ErrEmailUnverified,
		},
		{
			name:       "subject mismatch",
			mutate:     func(*TokenInfo) {},
			subject:    "sub-2",
			email:      "ada@example.com",
			wantReason: ErrDataMismatch,
		},
		{
			name:       "email mismatch",
			mutate:     func(*TokenInfo) {},
			subject:    "sub-1",
			email:      "mallory@example.com",
			wantReason: ErrDataMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := validInfo()
			tt.mutate(info)
			v := newTestVerifier(&testutil.MockIntrospector{Info: info})

			id, err := v.Verify(context.Background(), "assertion", tt.subject, tt.email)
			if err == nil {
				t.Fatalf("Verify() = %+v, want error", id)
			}

			// Every failure crosses the boundary as the same generic error
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("error type = %T, want *AppError", err)
			}
			if appErr.Code != apperrors.ErrCodeAuthFailed {
				t.Errorf("code = %s, want %s", appErr.Code, apperrors.ErrCodeAuthFailed)
			}
			if appErr.Message != "Authentication failed" {
				t.Errorf("message = %q leaks detail, want the generic message", appErr.Message)
			}

			// The real reason stays on the internal, non-serialized field
			if !errors.Is(err, tt.wantReason) {
				t.Errorf("internal reason = %v, want %v", appErr.Internal, tt.wantReason)
			}
		})
	}
}

func TestVerifier_IntrospectionFailure(t *testing.T) {
	v := newTestVerifier(&testutil.MockIntrospector{Error: errors.New("provider returned 400")})

	_, err := v.Verify(context.Background(), "garbage", "sub-1", "ada@example.com")
	if err == nil {
		t.Fatal("Verify() succeeded on introspection failure")
	}
	if !errors.Is(err, ErrInvalidAssertion) {
		t.Errorf("internal reason = %v, want ErrInvalidAssertion", err)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Message != "Authentication failed" {
		t.Errorf("caller-facing error = %v, want the generic message", err)
	}
}
