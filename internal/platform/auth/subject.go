package auth

import (
	"context"
	"errors"
)

// ErrAuthFailure matches every token validation failure. Callers must not
// distinguish causes in what they return to clients.
var ErrAuthFailure = errors.New("authentication failed")

// Failure reasons, used as log fields and metric labels.
const (
	ReasonMissingHeader       = "missing_header"
	ReasonMalformedHeader     = "malformed_header"
	ReasonEmptyToken          = "empty_token"
	ReasonInvalidToken        = "invalid_token"
	ReasonExpiredToken        = "expired_token"
	ReasonNoSubject           = "no_subject"
	ReasonProviderUnavailable = "provider_unavailable"
)

// Subject is the authenticated caller.
type Subject struct {
	UserID string
	Email  string
}

// Verifier validates a bearer token and returns its subject. Every error it
// returns satisfies errors.Is(err, ErrAuthFailure).
type Verifier interface {
	Verify(ctx context.Context, token string) (*Subject, error)
}

// FailureError carries the reason a token was refused.
type FailureError struct {
	Reason string
	Err    error
}

func (e *FailureError) Error() string {
	if e.Err == nil {
		return "authentication failed: " + e.Reason
	}
	return "authentication failed: " + e.Reason + ": " + e.Err.Error()
}

func (e *FailureError) Unwrap() error { return e.Err }

func (e *FailureError) Is(target error) bool { return target == ErrAuthFailure }

func fail(reason string, err error) error {
	return &FailureError{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from err, defaulting to
// ReasonInvalidToken.
func ReasonOf(err error) string {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonInvalidToken
}

type contextKey string

const subjectKey contextKey = "auth_subject"

func WithSubject(ctx context.Context, s *Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

// SubjectFromContext returns the subject stored by Gate, or nil.
func SubjectFromContext(ctx context.Context) *Subject {
	s, _ := ctx.Value(subjectKey).(*Subject)
	return s
}
