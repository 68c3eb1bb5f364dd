package gateway

import (
	"context"
	"net/http"

	"github.com/parley-chat/parley/internal/model"
)

// AuthResponse is returned by the sign-in and sign-up endpoints.
type AuthResponse struct {
	Token string         `json:"token"`
	User  model.Identity `json:"user"`
}

// SignIn exchanges an identifier and secret for a bearer credential.
func (g *Gateway) SignIn(ctx context.Context, identifier, secret string) (*AuthResponse, error) {
	body := map[string]string{"email": identifier, "password": secret}
	data, err := g.doJSON(ctx, http.MethodPost, "/auth/login", nil, body)
	if err != nil {
		return nil, err
	}
	var resp AuthResponse
	if err := decode("/auth/login", data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignUpRequest carries the fields for account creation.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// SignUp creates an account and returns its first credential.
func (g *Gateway) SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error) {
	data, err := g.doJSON(ctx, http.MethodPost, "/auth/register", nil, req)
	if err != nil {
		return nil, err
	}
	var resp AuthResponse
	if err := decode("/auth/register", data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
