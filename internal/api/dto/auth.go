package dto

import "time"

// VerifyRequest is the payload the client submits across the trust
// boundary: the opaque assertion plus its claimed identity.
type VerifyRequest struct {
	Assertion string `json:"assertion" validate:"required"`
	Subject   string `json:"subject" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
}

// UserDTO is the user representation returned to the client
type UserDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// VerifyResponse is returned on successful verification
type VerifyResponse struct {
	Verified bool    `json:"verified"`
	User     UserDTO `json:"user"`
	Token    string  `json:"token"`
}
