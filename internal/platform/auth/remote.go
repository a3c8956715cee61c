package auth

import (
	"context"
	"errors"
	"time"

	"github.com/ehr/profileapi/internal/platform/supabase"
	"github.com/ehr/profileapi/internal/platform/telemetry"
)

// UserFetcher resolves an access token to its user. *supabase.Client
// implements it.
type UserFetcher interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// RemoteVerifier asks the identity provider to validate every token.
type RemoteVerifier struct {
	users   UserFetcher
	timeout time.Duration
}

func NewRemoteVerifier(users UserFetcher, timeout time.Duration) *RemoteVerifier {
	return &RemoteVerifier{users: users, timeout: timeout}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Subject, error) {
	if token == "" {
		return nil, fail(ReasonEmptyToken, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	u, err := v.users.GetUser(ctx, token)
	telemetry.ObserveCall("gotrue", "get_user", start, err)

	switch {
	case err == nil:
	case errors.Is(err, supabase.ErrUnauthorized):
		return nil, fail(ReasonInvalidToken, err)
	case errors.Is(err, supabase.ErrNoUser):
		return nil, fail(ReasonNoSubject, err)
	default:
		return nil, fail(ReasonProviderUnavailable, err)
	}

	if u == nil || u.ID == "" {
		return nil, fail(ReasonNoSubject, nil)
	}
	return &Subject{UserID: u.ID, Email: u.Email}, nil
}
