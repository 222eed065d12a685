// Package session owns the local session lifecycle: it is the single source
// of truth for "who is signed in" within the running process.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/involy/involy/internal/auth"
	"github.com/involy/involy/internal/domain/user"
	"github.com/involy/involy/internal/localstore"
	apperrors "github.com/involy/involy/internal/pkg/errors"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/pkg/metrics"
	"github.com/involy/involy/internal/ratelimit"
	"github.com/involy/involy/internal/verify"
)

const (
	sessionKey      = "session"
	lastActivityKey = "last_activity"

	// ActionSignIn is the rate-limited action name for sign-in attempts
	ActionSignIn = "signin"
)

// ErrStaleSignIn marks a verification that resolved after a later committed
// transition. The result is discarded, never reapplied.
var ErrStaleSignIn = errors.New("sign-in resolved after a newer auth transition")

// Session is the local record of the current signed-in identity plus its
// validity window. Replaced wholesale on re-authentication, never mutated.
type Session struct {
	User      user.User `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// persistedSession is the durable form of a Session. user.User hides the
// provider subject from API JSON, so it travels in a field of its own here
// to survive the round-trip.
type persistedSession struct {
	User      user.User `json:"user"`
	Subject   string    `json:"subject"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func encodeSession(s *Session) ([]byte, error) {
	return json.Marshal(persistedSession{
		User:      s.User,
		Subject:   s.User.Subject,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	})
}

func decodeSession(raw []byte) (*Session, error) {
	var p persistedSession
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	s := &Session{
		User:      p.User,
		Token:     p.Token,
		ExpiresAt: p.ExpiresAt,
	}
	s.User.Subject = p.Subject
	return s, nil
}

// Store is the client-local durable storage the session persists to
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// AssertionVerifier validates a bearer assertion inside the trust boundary
type AssertionVerifier interface {
	Verify(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*verify.Identity, error)
}

// AttemptLimiter throttles sign-in attempts
type AttemptLimiter interface {
	Allow(action string, limit int, window time.Duration) bool
	Remaining(action string, limit int, window time.Duration) int
}

// Callback receives the session after each committed transition; nil means
// signed out. Subscribers see only forward transitions, never a replay of
// the state at subscription time.
type Callback func(*Session)

// Config contains session manager configuration
type Config struct {
	TokenSecret  string
	SessionTTL   time.Duration
	SignInLimit  int
	SignInWindow time.Duration
}

// Manager owns session creation, expiry, persistence and change
// notification.
type Manager struct {
	verifier AssertionVerifier
	users    user.Repository
	limiter  AttemptLimiter
	store    Store
	cfg      Config
	logger   *logger.Logger
	now      func() time.Time

	// notifyMu serializes transition commits and their notification
	// batches; it is always acquired before mu.
	notifyMu sync.Mutex

	mu           sync.Mutex
	current      *Session
	gen          uint64 // bumped on every committed transition
	lastActivity time.Time
	subscribers  []subscriber
	nextSubID    int
}

type subscriber struct {
	id int
	fn Callback
}

// NewManager creates a session manager and restores the persisted session
// if one exists and is not yet expired. A storage failure degrades to the
// signed-out state.
func NewManager(v AssertionVerifier, users user.Repository, limiter AttemptLimiter, store Store, cfg Config, log *logger.Logger) *Manager {
	m := &Manager{
		verifier: v,
		users:    users,
		limiter:  limiter,
		store:    store,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
	m.restore()
	if m.lastActivity.IsZero() {
		m.lastActivity = m.now()
	}
	return m
}

func (m *Manager) restore() {
	raw, err := m.store.Get(sessionKey)
	if err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			m.logger.WithError(err).Warn("Session restore failed, starting signed out")
		}
		return
	}

	s, err := decodeSession(raw)
	if err != nil {
		m.logger.WithError(err).Warn("Persisted session malformed, discarding")
		_ = m.store.Delete(sessionKey)
		return
	}

	if !s.ExpiresAt.After(m.now()) {
		_ = m.store.Delete(sessionKey)
		return
	}

	m.current = s

	// The idle clock survives restarts; without the persisted instant a
	// restart would grant a fresh idle window to a session that sat
	// untouched the whole time.
	if raw, err := m.store.Get(lastActivityKey); err == nil {
		var t time.Time
		if err := t.UnmarshalText(raw); err == nil {
			m.lastActivity = t
		}
	}
}

// SignInWithAssertion verifies the assertion, upserts the user record by
// provider subject, mints a 24h session and commits it. Every failure is
// normalized: the caller sees either the user, a rate-limit error with
// remaining attempts, or the generic authentication error.
func (m *Manager) SignInWithAssertion(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*user.User, error) {
	action := ratelimit.Key(ActionSignIn, claimedEmail)
	if !m.limiter.Allow(action, m.cfg.SignInLimit, m.cfg.SignInWindow) {
		remaining := m.limiter.Remaining(action, m.cfg.SignInLimit, m.cfg.SignInWindow)
		metrics.RecordSignIn("rate_limited")
		return nil, apperrors.RateLimited("Too many sign-in attempts. Please try again later.", remaining)
	}

	m.mu.Lock()
	startGen := m.gen
	m.mu.Unlock()

	// Verification and the upsert block without holding locks; a sign-out
	// can commit while they are in flight.
	identity, err := m.verifier.Verify(ctx, assertion, claimedSubject, claimedEmail)
	if err != nil {
		metrics.RecordSignIn("auth_failed")
		return nil, m.normalize(err)
	}

	u, err := m.users.UpsertBySubject(ctx, identity.Subject, identity.Email, identity.Name, identity.AvatarURL)
	if err != nil {
		m.logger.WithError(err).Error("User upsert failed during sign-in")
		metrics.RecordSignIn("upstream_unavailable")
		appErr := apperrors.AuthFailed()
		appErr.Internal = err
		return nil, appErr
	}

	issuedAt := m.now()
	token, err := auth.Mint(u.ID, u.Email, u.Subject, m.cfg.TokenSecret, m.cfg.SessionTTL, issuedAt)
	if err != nil {
		m.logger.WithError(err).Error("Token minting failed")
		metrics.RecordSignIn("token_error")
		appErr := apperrors.AuthFailed()
		appErr.Internal = err
		return nil, appErr
	}

	s := &Session{
		User:      *u,
		Token:     token,
		ExpiresAt: issuedAt.Add(m.cfg.SessionTTL),
	}

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.gen != startGen {
		m.mu.Unlock()
		m.logger.With("subject", identity.Subject).Info("Discarding stale sign-in result")
		metrics.RecordSignIn("stale")
		appErr := apperrors.AuthFailed()
		appErr.Internal = ErrStaleSignIn
		return nil, appErr
	}

	raw, err := encodeSession(s)
	if err == nil {
		err = m.store.Put(sessionKey, raw)
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.WithError(err).Error("Session persistence failed, no session created")
		metrics.RecordSignIn("storage_error")
		appErr := apperrors.AuthFailed()
		appErr.Internal = err
		return nil, appErr
	}

	m.current = s
	m.gen++
	m.lastActivity = issuedAt
	subs := m.snapshotSubscribers()
	m.mu.Unlock()

	m.notify(subs, s)
	metrics.RecordSignIn("success")
	m.logger.With("user_id", u.ID).Info("Signed in")
	return u, nil
}

// SignOut clears the in-memory and persisted session and notifies
// subscribers with no session.
func (m *Manager) SignOut() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.signOutLocked()
}

// signOutLocked commits the signed-out transition. Caller holds notifyMu.
// Signing out while already signed out is not a transition: it still bumps
// the generation so in-flight sign-ins are discarded, but subscribers are
// not notified.
func (m *Manager) signOutLocked() {
	m.mu.Lock()
	if m.current == nil {
		m.gen++
		m.mu.Unlock()
		return
	}

	if err := m.store.Delete(sessionKey); err != nil {
		// The in-memory state still transitions; a later restore of the
		// stale persisted session re-checks expiry anyway.
		m.logger.WithError(err).Warn("Failed to clear persisted session")
	}
	m.current = nil
	m.gen++
	subs := m.snapshotSubscribers()
	m.mu.Unlock()

	m.notify(subs, nil)
	m.logger.Info("Signed out")
}

// Session returns the current session, or nil when signed out. Pure read.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// User returns the currently signed-in user, or nil. Pure read.
func (m *Manager) User() *user.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	u := m.current.User
	return &u
}

// IsAuthenticated reports whether a live session exists. Detecting an
// expired session here triggers an implicit sign-out: this is a mutating
// read, the lazy-expiry point of the whole subsystem.
func (m *Manager) IsAuthenticated() bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	current := m.current
	expired := current != nil && !current.ExpiresAt.After(m.now())
	m.mu.Unlock()

	if current == nil {
		return false
	}
	if expired {
		m.logger.Info("Session expired, signing out")
		m.signOutLocked()
		return false
	}
	return true
}

// OnAuthStateChange registers a subscriber and returns its unsubscribe
// handle. Callers needing the state at mount read Session() once
// themselves.
func (m *Manager) OnAuthStateChange(fn Callback) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subscribers {
			if s.id == id {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Touch records interaction activity for the idle watcher. Persistence is
// best effort; the in-memory cell is authoritative within the process.
func (m *Manager) Touch() {
	now := m.now()

	m.mu.Lock()
	m.lastActivity = now
	m.mu.Unlock()

	raw, _ := now.MarshalText()
	if err := m.store.Put(lastActivityKey, raw); err != nil {
		m.logger.WithError(err).Warn("Failed to persist last activity")
	}
}

// LastActivity returns the most recent recorded interaction instant
func (m *Manager) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

func (m *Manager) snapshotSubscribers() []subscriber {
	subs := make([]subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	return subs
}

// notify runs callbacks synchronously in registration order. Caller holds
// notifyMu, so batches for different transitions never interleave.
func (m *Manager) notify(subs []subscriber, s *Session) {
	for _, sub := range subs {
		sub.fn(s)
	}
}

// normalize guarantees no raw failure escapes the session core
func (m *Manager) normalize(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	wrapped := apperrors.AuthFailed()
	wrapped.Internal = err
	return wrapped
}
