package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/involy/involy/internal/localstore"
	apperrors "github.com/involy/involy/internal/pkg/errors"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/testutil"
	"github.com/involy/involy/internal/verify"
)

func testConfig() Config {
	return Config{
		TokenSecret:  "test-secret",
		SessionTTL:   24 * time.Hour,
		SignInLimit:  5,
		SignInWindow: time.Hour,
	}
}

func okVerifier(subject, email string) *testutil.StubVerifier {
	return &testutil.StubVerifier{
		VerifyFunc: func(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*verify.Identity, error) {
			return &verify.Identity{
				Subject: subject,
				Email:   email,
				Name:    "Ada Lovelace",
			}, nil
		},
	}
}

func newTestManager(v AssertionVerifier) (*Manager, *testutil.MockUserRepository, *testutil.MockStore) {
	repo := testutil.NewMockUserRepository()
	store := testutil.NewMockStore()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	limiter := &testutil.StubLimiter{Allowed: true, RemainingLeft: 4}
	m := NewManager(v, repo, limiter, store, testConfig(), log)
	return m, repo, store
}

func TestManager_SignInWithAssertion(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	m, _, store := newTestManager(okVerifier("sub-1", "ada@example.com"))
	m.now = func() time.Time { return issued }

	u, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com")
	if err != nil {
		t.Fatalf("SignInWithAssertion() error = %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Errorf("user email = %v, want ada@example.com", u.Email)
	}

	s := m.Session()
	if s == nil {
		t.Fatal("Session() returned nil after sign-in")
	}
	if want := issued.Add(24 * time.Hour); !s.ExpiresAt.Equal(want) {
		t.Errorf("session expiry = %v, want %v", s.ExpiresAt, want)
	}
	if s.User.ID != u.ID {
		t.Errorf("session user id = %v, want %v", s.User.ID, u.ID)
	}
	if s.Token == "" {
		t.Error("session token is empty")
	}
	if _, err := store.Get(sessionKey); err != nil {
		t.Errorf("session not persisted: %v", err)
	}
	if !m.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after sign-in")
	}
}

func TestManager_LazyExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	m, _, store := newTestManager(okVerifier("sub-1", "ada@example.com"))
	m.now = func() time.Time { return now }

	if _, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com"); err != nil {
		t.Fatalf("SignInWithAssertion() error = %v", err)
	}

	var notified []*Session
	m.OnAuthStateChange(func(s *Session) {
		notified = append(notified, s)
	})

	// Advance past the 24h validity window
	now = now.Add(24*time.Hour + time.Minute)

	if m.IsAuthenticated() {
		t.Error("IsAuthenticated() = true past expiry")
	}
	if s := m.Session(); s != nil {
		t.Errorf("Session() = %+v after lazy expiry, want nil", s)
	}
	if _, err := store.Get(sessionKey); !errors.Is(err, localstore.ErrNotFound) {
		t.Errorf("persisted session survived lazy expiry, Get err = %v", err)
	}
	if len(notified) != 1 || notified[0] != nil {
		t.Errorf("subscribers notified %v times, want one signed-out notification", len(notified))
	}
}

func TestManager_UpsertIdempotence(t *testing.T) {
	name := "First Name"
	v := &testutil.StubVerifier{
		VerifyFunc: func(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*verify.Identity, error) {
			return &verify.Identity{Subject: "sub-1", Email: "ada@example.com", Name: name}, nil
		},
	}

	m, repo, _ := newTestManager(v)

	u1, err := m.SignInWithAssertion(context.Background(), "a1", "sub-1", "ada@example.com")
	if err != nil {
		t.Fatalf("first sign-in error = %v", err)
	}

	name = "Second Name"
	u2, err := m.SignInWithAssertion(context.Background(), "a2", "sub-1", "ada@example.com")
	if err != nil {
		t.Fatalf("second sign-in error = %v", err)
	}

	if len(repo.BySubject) != 1 {
		t.Errorf("user records = %d, want exactly 1", len(repo.BySubject))
	}
	if u1.ID != u2.ID {
		t.Errorf("second upsert created a new id: %v != %v", u1.ID, u2.ID)
	}
	if u2.Name != "Second Name" {
		t.Errorf("user name = %q, want latest name", u2.Name)
	}
}

func TestManager_SignOut(t *testing.T) {
	m, _, store := newTestManager(okVerifier("sub-1", "ada@example.com"))

	if _, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com"); err != nil {
		t.Fatalf("SignInWithAssertion() error = %v", err)
	}

	var got []*Session
	m.OnAuthStateChange(func(s *Session) { got = append(got, s) })

	m.SignOut()

	if m.Session() != nil {
		t.Error("Session() != nil after sign-out")
	}
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after sign-out")
	}
	if _, err := store.Get(sessionKey); err == nil {
		t.Error("persisted session survived sign-out")
	}
	if len(got) != 1 || got[0] != nil {
		t.Errorf("subscriber notifications = %v, want one nil notification", got)
	}
}

func TestManager_StaleSignInDiscarded(t *testing.T) {
	verifyEntered := make(chan struct{})
	releaseVerify := make(chan struct{})

	v := &testutil.StubVerifier{
		VerifyFunc: func(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*verify.Identity, error) {
			close(verifyEntered)
			<-releaseVerify
			return &verify.Identity{Subject: "sub-a", Email: "a@example.com"}, nil
		},
	}

	m, _, _ := newTestManager(v)

	type result struct {
		err error
	}
	done := make(chan result, 1)
	go func() {
		_, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-a", "a@example.com")
		done <- result{err: err}
	}()

	<-verifyEntered
	// A sign-out commits while subject A's verification is still in flight
	m.SignOut()
	close(releaseVerify)

	res := <-done
	if res.err == nil {
		t.Fatal("stale sign-in returned no error")
	}
	if !errors.Is(res.err, ErrStaleSignIn) {
		t.Errorf("error = %v, want ErrStaleSignIn", res.err)
	}
	if m.Session() != nil {
		t.Error("stale verification re-authenticated the session")
	}
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated() = true, want SignedOut to stand")
	}
}

func TestManager_RateLimited(t *testing.T) {
	repo := testutil.NewMockUserRepository()
	store := testutil.NewMockStore()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	limiter := &testutil.StubLimiter{Allowed: false, RemainingLeft: 0}

	verifierCalled := false
	v := &testutil.StubVerifier{
		VerifyFunc: func(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*verify.Identity, error) {
			verifierCalled = true
			return &verify.Identity{Subject: "sub-1", Email: "ada@example.com"}, nil
		},
	}

	m := NewManager(v, repo, limiter, store, testConfig(), log)

	_, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com")
	if err == nil {
		t.Fatal("expected rate limit error")
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeRateLimited {
		t.Errorf("error = %v, want code %s", err, apperrors.ErrCodeRateLimited)
	}
	if verifierCalled {
		t.Error("verifier was called for a rate-limited attempt")
	}
	if repo.UpsertCalls != 0 {
		t.Errorf("upsert calls = %d, want 0", repo.UpsertCalls)
	}
}

func TestManager_VerificationFailureCreatesNoUser(t *testing.T) {
	v := &testutil.StubVerifier{
		VerifyFunc: func(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*verify.Identity, error) {
			appErr := apperrors.AuthFailed()
			appErr.Internal = verify.ErrAudienceMismatch
			return nil, appErr
		},
	}

	m, repo, _ := newTestManager(v)

	_, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com")
	if err == nil {
		t.Fatal("expected verification failure")
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeAuthFailed {
		t.Errorf("error = %v, want generic auth failure", err)
	}
	if repo.UpsertCalls != 0 {
		t.Errorf("upsert calls = %d, want 0 on verification failure", repo.UpsertCalls)
	}
	if m.Session() != nil {
		t.Error("session created despite verification failure")
	}
}

func TestManager_StorageFailureCreatesNoSession(t *testing.T) {
	m, _, store := newTestManager(okVerifier("sub-1", "ada@example.com"))
	store.PutError = errors.New("disk full")

	_, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com")
	if err == nil {
		t.Fatal("expected failure when persistence fails")
	}
	if m.Session() != nil {
		t.Error("in-memory session created despite storage failure")
	}
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated() = true despite storage failure")
	}
}

func TestManager_UpstreamFailureNormalized(t *testing.T) {
	m, repo, _ := newTestManager(okVerifier("sub-1", "ada@example.com"))
	repo.UpsertError = errors.New("connection refused")

	_, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com")
	if err == nil {
		t.Fatal("expected failure when upsert fails")
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeAuthFailed {
		t.Errorf("error = %v, want it collapsed to the generic auth failure", err)
	}
	if m.Session() != nil {
		t.Error("partial session created despite upstream failure")
	}
}

func TestManager_SubscriberOrderAndUnsubscribe(t *testing.T) {
	m, _, _ := newTestManager(okVerifier("sub-1", "ada@example.com"))

	var order []string
	m.OnAuthStateChange(func(*Session) { order = append(order, "first") })
	unsub := m.OnAuthStateChange(func(*Session) { order = append(order, "second") })
	m.OnAuthStateChange(func(*Session) { order = append(order, "third") })

	if len(order) != 0 {
		t.Fatalf("subscribers received a replay at registration: %v", order)
	}

	if _, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com"); err != nil {
		t.Fatalf("SignInWithAssertion() error = %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("notifications = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("notification order = %v, want %v", order, want)
		}
	}

	unsub()
	order = nil
	m.SignOut()

	if len(order) != 2 || order[0] != "first" || order[1] != "third" {
		t.Errorf("notifications after unsubscribe = %v, want [first third]", order)
	}
}

func TestManager_RestorePersistedSession(t *testing.T) {
	issued := time.Now()

	m, _, store := newTestManager(okVerifier("sub-1", "ada@example.com"))
	m.now = func() time.Time { return issued }
	if _, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com"); err != nil {
		t.Fatalf("SignInWithAssertion() error = %v", err)
	}

	// A new process over the same store restores the live session
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	repo := testutil.NewMockUserRepository()
	limiter := &testutil.StubLimiter{Allowed: true}
	restored := NewManager(okVerifier("sub-1", "ada@example.com"), repo, limiter, store, testConfig(), log)

	if !restored.IsAuthenticated() {
		t.Error("restored manager not authenticated")
	}
	s := restored.Session()
	if s == nil || s.User.Email != "ada@example.com" {
		t.Fatalf("restored session = %+v, want persisted user", s)
	}
	if s.User.Subject != "sub-1" {
		t.Errorf("restored subject = %q, want sub-1 (lost in the round-trip)", s.User.Subject)
	}
	if restored.LastActivity().IsZero() {
		t.Error("restored LastActivity is zero, want fallback to now")
	}
}

func TestManager_RestorePersistedActivity(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)

	m, _, store := newTestManager(okVerifier("sub-1", "ada@example.com"))
	m.now = func() time.Time { return past }
	if _, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com"); err != nil {
		t.Fatalf("SignInWithAssertion() error = %v", err)
	}
	m.Touch()

	// A restarted process must inherit the idle clock, not reset it
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	repo := testutil.NewMockUserRepository()
	limiter := &testutil.StubLimiter{Allowed: true}
	restored := NewManager(okVerifier("sub-1", "ada@example.com"), repo, limiter, store, testConfig(), log)

	if got := restored.LastActivity(); !got.Equal(past) {
		t.Errorf("restored LastActivity = %v, want persisted instant %v", got, past)
	}

	// Two hours idle against a 30 minute timeout: the first poll after the
	// restart ends the session
	w := NewIdleWatcher(restored, 30*time.Minute, time.Minute, log)
	w.tick()

	if restored.IsAuthenticated() {
		t.Error("restored session survived the idle timeout")
	}
}

func TestManager_SignOutWhileSignedOutNotifiesNoOne(t *testing.T) {
	m, _, _ := newTestManager(okVerifier("sub-1", "ada@example.com"))

	var got []*Session
	m.OnAuthStateChange(func(s *Session) { got = append(got, s) })

	m.SignOut()
	if len(got) != 0 {
		t.Fatalf("notifications = %d for a sign-out with no session, want 0", len(got))
	}

	if _, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com"); err != nil {
		t.Fatalf("SignInWithAssertion() error = %v", err)
	}
	m.SignOut()
	m.SignOut()

	// one for the sign-in, one for the real sign-out, none for the repeat
	if len(got) != 2 {
		t.Errorf("notifications = %d, want 2", len(got))
	}
	if got[len(got)-1] != nil {
		t.Errorf("last notification = %+v, want nil", got[len(got)-1])
	}
}

func TestManager_RestoreSkipsExpiredSession(t *testing.T) {
	issued := time.Now().Add(-25 * time.Hour)

	m, _, store := newTestManager(okVerifier("sub-1", "ada@example.com"))
	m.now = func() time.Time { return issued }
	if _, err := m.SignInWithAssertion(context.Background(), "assertion", "sub-1", "ada@example.com"); err != nil {
		t.Fatalf("SignInWithAssertion() error = %v", err)
	}

	log := logger.New(logger.Config{Level: "error", Format: "json"})
	repo := testutil.NewMockUserRepository()
	limiter := &testutil.StubLimiter{Allowed: true}
	restored := NewManager(okVerifier("sub-1", "ada@example.com"), repo, limiter, store, testConfig(), log)

	if restored.IsAuthenticated() {
		t.Error("restored manager authenticated from an expired session")
	}
	if _, err := store.Get(sessionKey); err == nil {
		t.Error("expired persisted session was not discarded")
	}
}

func TestManager_RestoreStorageFailureDegrades(t *testing.T) {
	store := testutil.NewMockStore()
	store.GetError = errors.New("corrupt volume")
	repo := testutil.NewMockUserRepository()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	limiter := &testutil.StubLimiter{Allowed: true}

	m := NewManager(okVerifier("sub-1", "ada@example.com"), repo, limiter, store, testConfig(), log)

	if m.IsAuthenticated() {
		t.Error("manager authenticated despite storage failure at restore")
	}
}
