package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/involy/involy/internal/domain/user"
	"github.com/involy/involy/internal/pkg/errors"
)

// UserRepository implements user.Repository
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) user.Repository {
	return &UserRepository{db: db}
}

// UpsertBySubject inserts a user for an unseen provider subject or updates
// the mutable profile fields of the existing row. Exactly one row per
// subject exists afterwards.
func (r *UserRepository) UpsertBySubject(ctx context.Context, subject, email, name, avatarURL string) (*user.User, error) {
	now := time.Now()

	query := `
		INSERT INTO users (id, subject, email, name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (subject) DO UPDATE
		SET email = EXCLUDED.email,
		    name = EXCLUDED.name,
		    avatar_url = EXCLUDED.avatar_url,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, subject, email, name, avatar_url, created_at, updated_at
	`

	var u user.User
	err := r.db.QueryRowContext(ctx, query,
		uuid.New().String(), subject, email, name, avatarURL, now,
	).Scan(&u.ID, &u.Subject, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, errors.UpstreamUnavailable("Failed to upsert user", err)
	}

	return &u, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetBySubject retrieves a user by provider subject
func (r *UserRepository) GetBySubject(ctx context.Context, subject string) (*user.User, error) {
	return r.getBy(ctx, "subject", subject)
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*user.User, error) {
	query := `
		SELECT id, subject, email, name, avatar_url, created_at, updated_at
		FROM users WHERE ` + column + ` = $1
	`

	var u user.User
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&u.ID, &u.Subject, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("User")
	}
	if err != nil {
		return nil, errors.UpstreamUnavailable("Failed to get user", err)
	}

	return &u, nil
}
