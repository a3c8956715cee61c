package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var testSecret = []byte("test-secret-key-for-unit-tests-only")

func supabaseClaims(sub string, exp time.Time) SupabaseClaims {
	return SupabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "https://project.supabase.co/auth/v1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: "alice@x.com",
		Role:  "authenticated",
	}
}

func signHS256(t *testing.T, claims jwt.Claims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return s
}

func newSecretVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(context.Background(), JWTConfig{
		Secret:   testSecret,
		Issuer:   "https://project.supabase.co/auth/v1",
		Audience: "authenticated",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJWTVerifier() error: %v", err)
	}
	return v
}

func TestNewJWTVerifier_RequiresKeySource(t *testing.T) {
	if _, err := NewJWTVerifier(context.Background(), JWTConfig{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without secret or JWKS url")
	}
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	v := newSecretVerifier(t)
	token := signHS256(t, supabaseClaims("u1", time.Now().Add(time.Hour)), testSecret)

	s, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.UserID != "u1" || s.Email != "alice@x.com" {
		t.Errorf("unexpected subject %+v", s)
	}
}

func TestJWTVerifier_Rejections(t *testing.T) {
	v := newSecretVerifier(t)

	noExp := supabaseClaims("u1", time.Now())
	noExp.ExpiresAt = nil

	wrongAud := supabaseClaims("u1", time.Now().Add(time.Hour))
	wrongAud.Audience = jwt.ClaimStrings{"service"}

	wrongIss := supabaseClaims("u1", time.Now().Add(time.Hour))
	wrongIss.Issuer = "https://evil.example"

	tests := []struct {
		name   string
		token  string
		reason string
	}{
		{"empty", "", ReasonEmptyToken},
		{"garbage", "not.a.jwt", ReasonInvalidToken},
		{"expired", signHS256(t, supabaseClaims("u1", time.Now().Add(-time.Hour)), testSecret), ReasonExpiredToken},
		{"wrong key", signHS256(t, supabaseClaims("u1", time.Now().Add(time.Hour)), []byte("other-secret")), ReasonInvalidToken},
		{"no exp", signHS256(t, noExp, testSecret), ReasonInvalidToken},
		{"wrong audience", signHS256(t, wrongAud, testSecret), ReasonInvalidToken},
		{"wrong issuer", signHS256(t, wrongIss, testSecret), ReasonInvalidToken},
		{"anon key shape", signHS256(t, supabaseClaims("", time.Now().Add(time.Hour)), testSecret), ReasonNoSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := v.Verify(context.Background(), tt.token)
			if err == nil {
				t.Fatalf("expected rejection, got subject %+v", s)
			}
			if !errors.Is(err, ErrAuthFailure) {
				t.Errorf("expected ErrAuthFailure, got %v", err)
			}
			if got := ReasonOf(err); got != tt.reason {
				t.Errorf("reason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestJWTVerifier_RejectsAlgNone(t *testing.T) {
	v := newSecretVerifier(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, supabaseClaims("u1", time.Now().Add(time.Hour))).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}
	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrAuthFailure) {
		t.Fatalf("expected rejection of alg none, got %v", err)
	}
}

func TestJWTVerifier_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwks := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "test-kid",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, err := NewJWTVerifier(ctx, JWTConfig{
		JWKSURL:     srv.URL,
		Audience:    "authenticated",
		HTTPTimeout: 2 * time.Second,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJWTVerifier() error: %v", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, supabaseClaims("u-rsa", time.Now().Add(time.Hour)))
	tok.Header["kid"] = "test-kid"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	s, err := v.Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.UserID != "u-rsa" {
		t.Errorf("expected u-rsa, got %s", s.UserID)
	}

	// HS256 tokens must not be accepted by a JWKS verifier.
	hs := signHS256(t, supabaseClaims("u1", time.Now().Add(time.Hour)), testSecret)
	if _, err := v.Verify(context.Background(), hs); !errors.Is(err, ErrAuthFailure) {
		t.Errorf("expected HS256 token to be rejected, got %v", err)
	}
}
