package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/raphaelgruber/ragchat/internal/metrics"
)

// Token is the login/register response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
}

type credentialsInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges a username and password for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	return c.authenticate(ctx, metrics.OpLogin, "/api/v1/auth/login", username, password)
}

// Register creates an account and returns a bearer token for it.
func (c *Client) Register(ctx context.Context, username, password string) (*Token, error) {
	return c.authenticate(ctx, metrics.OpRegister, "/api/v1/auth/register", username, password)
}

func (c *Client) authenticate(ctx context.Context, op, path, username, password string) (*Token, error) {
	req, err := c.jsonRequest(op, http.MethodPost, path, credentialsInput{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	empty := ""
	req.token = &empty

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("response missing access_token")
	}
	if tok.Username == "" {
		tok.Username = username
	}
	return &tok, nil
}

// Me validates token against GET /api/v1/auth/me and returns the username.
// The token is passed explicitly because bootstrap validates a specific
// stored credential rather than whatever the store holds at call time.
func (c *Client) Me(ctx context.Context, token string) (string, error) {
	req := request{
		op:     metrics.OpMe,
		method: http.MethodGet,
		path:   "/api/v1/auth/me",
		token:  &token,
	}
	body, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}

	var out struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Username == "" {
		return "", fmt.Errorf("response missing username")
	}
	return out.Username, nil
}
