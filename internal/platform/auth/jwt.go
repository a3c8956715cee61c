package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// SupabaseClaims is the payload of a Supabase access token.
type SupabaseClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	Role         string         `json:"role"`
	AAL          string         `json:"aal"`
	SessionID    string         `json:"session_id"`
	IsAnonymous  bool           `json:"is_anonymous"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type JWTConfig struct {
	// Secret is the project's shared HS256 secret. Ignored when JWKSURL is set.
	Secret  []byte
	JWKSURL string

	Issuer   string
	Audience string
	Leeway   time.Duration

	// HTTPTimeout bounds each JWKS fetch.
	HTTPTimeout     time.Duration
	RefreshInterval time.Duration
}

// JWTVerifier validates access tokens locally against a shared secret or
// the provider's published key set.
type JWTVerifier struct {
	keyfunc func(ctx context.Context) jwt.Keyfunc
	opts    []jwt.ParserOption
}

// NewJWTVerifier builds a verifier. With a JWKS URL the key set is fetched
// in the background until ctx is cancelled; startup does not fail when the
// endpoint is briefly unreachable.
func NewJWTVerifier(ctx context.Context, cfg JWTConfig, logger zerolog.Logger) (*JWTVerifier, error) {
	v := &JWTVerifier{}
	var methods []string

	switch {
	case cfg.JWKSURL != "":
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		refresh := cfg.RefreshInterval
		if refresh <= 0 {
			refresh = 5 * time.Minute
		}
		storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
			Client:                    &http.Client{Timeout: timeout},
			Ctx:                       ctx,
			NoErrorReturnFirstHTTPReq: true,
			RefreshInterval:           refresh,
			RefreshErrorHandler: func(_ context.Context, err error) {
				logger.Error().Err(err).Str("url", cfg.JWKSURL).Msg("jwks refresh failed")
			},
		})
		if err != nil {
			return nil, fmt.Errorf("create jwks storage: %w", err)
		}
		k, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
		if err != nil {
			return nil, fmt.Errorf("create keyfunc: %w", err)
		}
		v.keyfunc = k.KeyfuncCtx
		methods = []string{"RS256", "ES256", "EdDSA"}
	case len(cfg.Secret) > 0:
		secret := cfg.Secret
		v.keyfunc = func(context.Context) jwt.Keyfunc {
			return func(*jwt.Token) (any, error) { return secret, nil }
		}
		methods = []string{"HS256"}
	default:
		return nil, errors.New("jwt verifier needs a secret or a JWKS url")
	}

	v.opts = []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		v.opts = append(v.opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		v.opts = append(v.opts, jwt.WithAudience(cfg.Audience))
	}
	return v, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*Subject, error) {
	if token == "" {
		return nil, fail(ReasonEmptyToken, nil)
	}

	claims := &SupabaseClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyfunc(ctx), v.opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fail(ReasonExpiredToken, err)
		}
		return nil, fail(ReasonInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, fail(ReasonInvalidToken, nil)
	}

	// The anon and service keys are JWTs too, but carry no subject.
	if claims.Subject == "" {
		return nil, fail(ReasonNoSubject, nil)
	}
	return &Subject{UserID: claims.Subject, Email: claims.Email}, nil
}
