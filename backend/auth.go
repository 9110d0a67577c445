package backend

import (
	"context"
	"net/http"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// Login exchanges credentials for a token and user record
func (c *Client) Login(ctx context.Context, req LoginRequest) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, "/auth/login", req)
}

// Register creates an account, the payload is sent as is
func (c *Client) Register(ctx context.Context, payload any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, "/auth/register", payload)
}

// Me returns the user bound to the client token
func (c *Client) Me(ctx context.Context) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, "/auth/me", nil)
}

// Logout notifies the backend that the token is no longer used
func (c *Client) Logout(ctx context.Context) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, "/auth/logout", nil)
}
