package client

import (
	"context"
	"time"
)

// VerifyRequest carries a provider assertion and its claimed identity
type VerifyRequest struct {
	Assertion string `json:"assertion"`
	Subject   string `json:"subject"`
	Email     string `json:"email"`
}

// VerifyResponse is returned on successful verification
type VerifyResponse struct {
	Verified bool   `json:"verified"`
	User     *User  `json:"user,omitempty"`
	Token    string `json:"token"`
}

// User represents a user in the system
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Verify exchanges a provider assertion for a session token. On success the
// token is set on the client for subsequent requests.
func (c *Client) Verify(ctx context.Context, assertion, subject, email string) (*VerifyResponse, error) {
	req := VerifyRequest{
		Assertion: assertion,
		Subject:   subject,
		Email:     email,
	}

	var resp VerifyResponse
	if err := c.doRequest(ctx, "POST", "/api/auth/verify", req, &resp); err != nil {
		return nil, err
	}

	if resp.Token != "" {
		c.SetToken(resp.Token)
	}

	return &resp, nil
}

// GetCurrentUser retrieves the currently authenticated user
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.doRequest(ctx, "GET", "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
