package user

import "time"

// User represents an account created from a verified identity. Records are
// only ever created or updated through the subject-keyed upsert; this
// subsystem never deletes them.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Subject   string    `json:"-"` // identity-provider subject, upsert key
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
