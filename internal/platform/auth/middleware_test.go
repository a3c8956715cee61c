package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type stubVerifier struct {
	subject *Subject
	err     error
	calls   int
}

func (s *stubVerifier) Verify(_ context.Context, token string) (*Subject, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.subject, nil
}

func runGate(t *testing.T, v Verifier, header string) (echo.Context, *httptest.ResponseRecorder, error, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	h := Gate(v, zerolog.Nop())(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	})
	err := h(c)
	return c, rec, err, called
}

func assertRejected(t *testing.T, rec *httptest.ResponseRecorder, err error, called bool) {
	t.Helper()
	if called {
		t.Fatal("handler must not run for a rejected request")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
	if httpErr.Message != MsgInvalidCredentials {
		t.Errorf("expected generic message, got %v", httpErr.Message)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("expected WWW-Authenticate: Bearer, got %q", got)
	}
}

func TestGate_MissingHeader(t *testing.T) {
	v := &stubVerifier{}
	_, rec, err, called := runGate(t, v, "")
	assertRejected(t, rec, err, called)
	if v.calls != 0 {
		t.Error("verifier must not be called without a header")
	}
	if ReasonOf(err.(*echo.HTTPError).Internal) != ReasonMissingHeader {
		t.Errorf("expected missing header reason")
	}
}

func TestGate_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &stubVerifier{}
			_, rec, err, called := runGate(t, v, tt.header)
			assertRejected(t, rec, err, called)
			if v.calls != 0 {
				t.Error("verifier must not be called for a malformed header")
			}
		})
	}
}

func TestGate_VerifierRejects(t *testing.T) {
	v := &stubVerifier{err: fail(ReasonExpiredToken, errors.New("token is expired"))}
	_, rec, err, called := runGate(t, v, "Bearer expired")
	assertRejected(t, rec, err, called)
}

func TestGate_ValidToken(t *testing.T) {
	v := &stubVerifier{subject: &Subject{UserID: "u1", Email: "alice@x.com"}}
	c, rec, err, called := runGate(t, v, "bearer T1")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	s := SubjectFromContext(c.Request().Context())
	if s == nil || s.UserID != "u1" {
		t.Errorf("expected subject u1 in context, got %+v", s)
	}
	if c.Get("user_id") != "u1" {
		t.Errorf("expected user_id on echo context, got %v", c.Get("user_id"))
	}
}

func TestGate_SameMessageForEveryCause(t *testing.T) {
	causes := []Verifier{
		&stubVerifier{err: fail(ReasonInvalidToken, nil)},
		&stubVerifier{err: fail(ReasonExpiredToken, nil)},
		&stubVerifier{err: fail(ReasonProviderUnavailable, context.DeadlineExceeded)},
	}
	var first any
	for i, v := range causes {
		_, _, err, _ := runGate(t, v, "Bearer x")
		msg := err.(*echo.HTTPError).Message
		if i == 0 {
			first = msg
			continue
		}
		if msg != first {
			t.Errorf("cause %d produced %v, want %v", i, msg, first)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"BEARER abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Errorf("BearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, token, ok, tt.token, tt.ok)
		}
	}
}

func TestSubjectFromContext_Empty(t *testing.T) {
	if s := SubjectFromContext(context.Background()); s != nil {
		t.Errorf("expected nil subject, got %+v", s)
	}
}
