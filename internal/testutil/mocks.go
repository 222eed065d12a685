package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/involy/involy/internal/domain/subscription"
	"github.com/involy/involy/internal/domain/user"
	"github.com/involy/involy/internal/localstore"
	"github.com/involy/involy/internal/verify"
)

// MockUserRepository is a mock implementation of user.Repository
type MockUserRepository struct {
	BySubject   map[string]*user.User
	ByID        map[string]*user.User
	NextID      int
	UpsertCalls int
	UpsertError error
	GetError    error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		BySubject: make(map[string]*user.User),
		ByID:      make(map[string]*user.User),
		NextID:    1,
	}
}

func (m *MockUserRepository) UpsertBySubject(ctx context.Context, subject, email, name, avatarURL string) (*user.User, error) {
	m.UpsertCalls++
	if m.UpsertError != nil {
		return nil, m.UpsertError
	}

	now := time.Now()
	if u, ok := m.BySubject[subject]; ok {
		u.Email = email
		u.Name = name
		u.AvatarURL = avatarURL
		u.UpdatedAt = now
		copied := *u
		return &copied, nil
	}

	u := &user.User{
		ID:        fmt.Sprintf("user-%d", m.NextID),
		Subject:   subject,
		Email:     email,
		Name:      name,
		AvatarURL: avatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.NextID++
	m.BySubject[subject] = u
	m.ByID[u.ID] = u
	copied := *u
	return &copied, nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	u, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	copied := *u
	return &copied, nil
}

func (m *MockUserRepository) GetBySubject(ctx context.Context, subject string) (*user.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	u, ok := m.BySubject[subject]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	copied := *u
	return &copied, nil
}

// MockSubscriptionRepository is a mock implementation of
// subscription.Repository
type MockSubscriptionRepository struct {
	Records  map[string]*subscription.Record
	GetError error
}

func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{
		Records: make(map[string]*subscription.Record),
	}
}

func (m *MockSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*subscription.Record, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	rec, ok := m.Records[userID]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

// MockStore is an in-memory stand-in for the client-local durable store
type MockStore struct {
	mu          sync.Mutex
	Values      map[string][]byte
	GetError    error
	PutError    error
	DeleteError error
	ListError   error
}

func NewMockStore() *MockStore {
	return &MockStore{
		Values: make(map[string][]byte),
	}
}

func (m *MockStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	v, ok := m.Values[key]
	if !ok {
		return nil, localstore.ErrNotFound
	}
	return v, nil
}

func (m *MockStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutError != nil {
		return m.PutError
	}
	m.Values[key] = value
	return nil
}

func (m *MockStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteError != nil {
		return m.DeleteError
	}
	delete(m.Values, key)
	return nil
}

func (m *MockStore) List(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	var keys []string
	for k := range m.Values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// MockIntrospector is a mock implementation of verify.Introspector
type MockIntrospector struct {
	Info  *verify.TokenInfo
	Error error
}

func (m *MockIntrospector) Introspect(ctx context.Context, assertion string) (*verify.TokenInfo, error) {
	if m.Error != nil {
		return nil, m.Error
	}
	copied := *m.Info
	return &copied, nil
}

// StubVerifier delegates to a function, for driving session manager tests
type StubVerifier struct {
	VerifyFunc func(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*verify.Identity, error)
}

func (s *StubVerifier) Verify(ctx context.Context, assertion, claimedSubject, claimedEmail string) (*verify.Identity, error) {
	return s.VerifyFunc(ctx, assertion, claimedSubject, claimedEmail)
}

// StubLimiter always answers with a fixed decision
type StubLimiter struct {
	Allowed       bool
	RemainingLeft int
}

func (s *StubLimiter) Allow(action string, limit int, window time.Duration) bool {
	return s.Allowed
}

func (s *StubLimiter) Remaining(action string, limit int, window time.Duration) int {
	return s.RemainingLeft
}
