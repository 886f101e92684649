package graph

import (
	"context"
	"log/slog"
	"net/http"
)

// userResponse mirrors the Graph API /me JSON response.
// Unexported: callers use User via toUser() normalization.
type userResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
	// UPN is a fallback when mail is empty (common on Personal accounts
	// where the mail field is often blank).
	UPN string `json:"userPrincipalName"`
}

// toUser normalizes a Graph API user response into our User type.
func (u *userResponse) toUser() User {
	email := u.Mail
	if email == "" {
		email = u.UPN
	}

	return User{
		ID:                u.ID,
		DisplayName:       u.DisplayName,
		Email:             email,
		UserPrincipalName: u.UPN,
	}
}

// Me returns the authenticated user's profile. Unlike the photo and link
// calls, a failed profile lookup is an error: nothing downstream can be
// rendered without it.
func (c *Client) Me(ctx context.Context) (*User, error) {
	c.logger.Info("fetching authenticated user profile")

	resp, err := c.Do(ctx, http.MethodGet, "/me", nil, nil)
	if err != nil {
		return nil, err
	}

	if err := resp.Err(); err != nil {
		return nil, err
	}

	var ur userResponse
	if err := resp.JSON(&ur); err != nil {
		return nil, err
	}

	user := ur.toUser()

	c.logger.Debug("fetched user profile",
		slog.String("id", user.ID),
		slog.String("display_name", user.DisplayName),
	)

	return &user, nil
}
