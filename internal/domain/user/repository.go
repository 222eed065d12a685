package user

import "context"

// Repository defines the interface for user data access
type Repository interface {
	// UpsertBySubject creates the user for an unseen provider subject, or
	// updates the mutable profile fields (email, name, avatar) for an
	// existing one. Returns the stored record either way.
	UpsertBySubject(ctx context.Context, subject, email, name, avatarURL string) (*User, error)

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetBySubject retrieves a user by provider subject
	GetBySubject(ctx context.Context, subject string) (*User, error)
}
