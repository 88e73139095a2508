package api

import (
	"context"
	"fmt"
)

// Login exchanges credentials for session tokens.
//
// A decoded response is returned even when Result is not "OK"; callers
// decide what a failed result means. Transport failures and HTTP error
// statuses come back as errors (*APIError for the latter).
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.post(ctx, c.loginURL, req, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	c.logger.Debug("login response",
		"result", resp.Result,
		"has_utip_token", resp.UtipToken != "",
		"user_id", resp.AcsUserID.String(),
	)

	return &resp, nil
}
