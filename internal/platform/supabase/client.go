// Package supabase wraps the two Supabase services the API consumes: GoTrue
// (auth) through gotrue-go and PostgREST (rest) through postgrest-go. A
// single Client is built at startup and shared by every request.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/postgrest-go"
)

const (
	authPath = "/auth/v1"
	restPath = "/rest/v1"

	// singleObjectMediaType makes PostgREST answer 406 unless exactly one
	// row matches.
	singleObjectMediaType = "application/vnd.pgrst.object+json"

	maxErrorBody = 4 << 10
)

var (
	// ErrUnauthorized is returned when GoTrue rejects the access token.
	ErrUnauthorized = errors.New("supabase: token rejected")
	// ErrNoUser is returned when GoTrue answers 200 without a user id.
	ErrNoUser = errors.New("supabase: no user returned")
	// ErrNotSingle is returned for single-row selects matching zero or
	// several rows.
	ErrNotSingle = errors.New("supabase: expected exactly one row")
)

// APIError is a non-2xx response from Supabase. It is only ever logged.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase: status %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("supabase: status %d: %s", e.Status, msg)
}

// User is the subset of the GoTrue user object the API needs.
type User struct {
	ID    string
	Email string
	Role  string
}

type Client struct {
	baseURL   string
	apiKey    string
	timeout   time.Duration
	transport http.RoundTripper
	auth      gotrue.Client
}

// New creates a client for the project at baseURL authenticated with the
// project's anon key. timeout bounds every call; callers may tighten it
// further through the request context.
func New(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("supabase: base url is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase: api key is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("supabase: invalid base url %q", baseURL)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		// The project reference is unused once the URL is overridden.
		auth: gotrue.New("", apiKey).WithCustomGoTrueURL(baseURL + authPath),
	}, nil
}

// GetUser validates accessToken with GoTrue and returns its user. GoTrue
// checks the signature and expiry.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rt := c.newCall(ctx)
	resp, err := c.auth.WithClient(http.Client{Transport: rt}).WithToken(accessToken).GetUser()
	if err != nil {
		switch {
		case rt.status == http.StatusUnauthorized || rt.status == http.StatusForbidden:
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, rt.apiError())
		case rt.failed():
			return nil, rt.apiError()
		}
		return nil, fmt.Errorf("supabase get user: %w", err)
	}
	if resp.ID == uuid.Nil {
		return nil, ErrNoUser
	}
	return &User{ID: resp.ID.String(), Email: resp.Email, Role: resp.Role}, nil
}

// Query describes a PostgREST read.
type Query struct {
	Columns []string
	Filters []Filter
	// OrderBy sorts ascending on one column.
	OrderBy string
	Single  bool
}

// Select runs q against table and decodes the JSON result into out. With
// q.Single set, out receives one object and ErrNotSingle is returned when
// the row count is not exactly one.
func (c *Client) Select(ctx context.Context, table string, q Query, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rt := c.newCall(ctx)
	rest := postgrest.NewClient(c.baseURL+restPath, "", map[string]string{
		"apikey":        c.apiKey,
		"Authorization": "Bearer " + c.apiKey,
	})
	if rest.ClientError != nil {
		return fmt.Errorf("supabase rest client: %w", rest.ClientError)
	}
	rest.Transport.Parent = rt

	fb := rest.From(table).Select(strings.Join(q.Columns, ","), "", false)
	for _, f := range q.Filters {
		fb = fb.Filter(f.Column, f.Op, f.Value)
	}
	if q.OrderBy != "" {
		fb = fb.Order(q.OrderBy, &postgrest.OrderOpts{Ascending: true})
	}
	if q.Single {
		fb = fb.Single()
	}

	if _, err := fb.ExecuteTo(out); err != nil {
		switch {
		case rt.status == http.StatusNotAcceptable && q.Single:
			return fmt.Errorf("%w: %w", ErrNotSingle, rt.apiError())
		case rt.failed():
			return rt.apiError()
		}
		return fmt.Errorf("supabase select %s: %w", table, err)
	}
	return nil
}

// Ping checks that the GoTrue health endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rt := c.newCall(ctx)
	if _, err := c.auth.WithClient(http.Client{Transport: rt}).HealthCheck(); err != nil {
		if rt.failed() {
			return rt.apiError()
		}
		return fmt.Errorf("supabase health: %w", err)
	}
	return nil
}

func (c *Client) newCall(ctx context.Context) *call {
	return &call{ctx: ctx, base: c.transport}
}

// call carries one library request. gotrue-go and postgrest-go build their
// requests without a context and flatten error responses into strings, so
// the round trip attaches ctx and keeps the status and error body.
type call struct {
	ctx    context.Context
	base   http.RoundTripper
	status int
	body   []byte
}

func (rt *call) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(rt.ctx)
	// postgrest-go appends its default Accept after the single-object one.
	if slices.Contains(req.Header.Values("Accept"), singleObjectMediaType) {
		req.Header.Set("Accept", singleObjectMediaType)
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	rt.status = resp.StatusCode
	if rt.failed() {
		rt.body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(rt.body))
	}
	return resp, nil
}

func (rt *call) failed() bool {
	return rt.status >= http.StatusMultipleChoices
}

func (rt *call) apiError() *APIError {
	return decodeError(rt.status, rt.body)
}

// decodeError reads a GoTrue or PostgREST error body. GoTrue uses "msg" or
// "error_description"; PostgREST uses "message".
func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if len(body) == 0 {
		return apiErr
	}

	var raw struct {
		Code             json.RawMessage `json:"code"`
		Message          string          `json:"message"`
		Details          string          `json:"details"`
		Hint             string          `json:"hint"`
		Msg              string          `json:"msg"`
		ErrorCode        string          `json:"error_code"`
		ErrorDescription string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	// GoTrue sends a numeric code, PostgREST a string one.
	apiErr.Code = strings.Trim(string(raw.Code), `"`)
	if raw.ErrorCode != "" {
		apiErr.Code = raw.ErrorCode
	}
	apiErr.Details = raw.Details
	apiErr.Hint = raw.Hint
	for _, m := range []string{raw.Message, raw.Msg, raw.ErrorDescription} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	return apiErr
}
