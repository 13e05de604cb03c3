// Package session carries a caller's token pair in a signed cookie so the
// server keeps no per-user state.
//
// The cookie is an HS256 JWT. The access token travels in clear inside the
// signed claims; the refresh token is sealed with a crypto.Encryptor first.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/crypto"
	"github.com/danwrong/yotohero/internal/model"
)

const (
	CookieName      = "session_token"
	LoginCookieName = "login_state"

	DefaultLoginTTL = 10 * time.Minute

	subjectSession = "session"
	subjectLogin   = "login"
)

var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid session")
)

type sessionClaims struct {
	AccessToken   string `json:"at"`
	TokenType     string `json:"tt,omitempty"`
	SealedRefresh string `json:"rt,omitempty"`
	AccessExpiry  int64  `json:"ate,omitempty"`
	jwt.RegisteredClaims
}

type loginClaims struct {
	SealedVerifier string `json:"pv"`
	State          string `json:"st"`
	jwt.RegisteredClaims
}

// Codec seals and opens session and login cookies.
type Codec struct {
	secret    []byte
	encryptor crypto.Encryptor
	ttl       time.Duration
	loginTTL  time.Duration
	now       func() time.Time
}

// NewCodec returns a Codec. An empty secret is a configuration failure.
func NewCodec(secret string, encryptor crypto.Encryptor, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, apperr.Wrap(apperr.ErrConfiguration, "session", "new codec", "session signing secret is empty", nil)
	}
	if encryptor == nil {
		encryptor = crypto.NewMockEncryptor()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Codec{
		secret:    []byte(secret),
		encryptor: encryptor,
		ttl:       ttl,
		loginTTL:  DefaultLoginTTL,
		now:       time.Now,
	}, nil
}

// TTL is the lifetime of a session cookie.
func (c *Codec) TTL() time.Duration { return c.ttl }

// LoginTTL is the lifetime of a login-state cookie.
func (c *Codec) LoginTTL() time.Duration { return c.loginTTL }

// Seal encodes pair into a signed session token.
func (c *Codec) Seal(ctx context.Context, pair model.TokenPair) (string, error) {
	if pair.AccessToken == "" {
		return "", apperr.Validation("cannot seal a session without an access token")
	}
	claims := sessionClaims{
		AccessToken:      pair.AccessToken,
		TokenType:        pair.TokenType,
		RegisteredClaims: c.registered(subjectSession, c.ttl),
	}
	if !pair.ExpiresAt.IsZero() {
		claims.AccessExpiry = pair.ExpiresAt.Unix()
	}
	if pair.RefreshToken != "" {
		sealed, err := c.encryptor.Encrypt(ctx, pair.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("seal refresh token: %w", err)
		}
		claims.SealedRefresh = sealed
	}
	return c.sign(claims)
}

// Open verifies a session token and recovers the token pair.
func (c *Codec) Open(ctx context.Context, token string) (model.TokenPair, error) {
	if token == "" {
		return model.TokenPair{}, sessionError(ErrNoSession)
	}
	claims := &sessionClaims{}
	if err := c.parse(token, subjectSession, claims); err != nil {
		return model.TokenPair{}, err
	}

	pair := model.TokenPair{AccessToken: claims.AccessToken, TokenType: claims.TokenType}
	if claims.AccessExpiry > 0 {
		pair.ExpiresAt = time.Unix(claims.AccessExpiry, 0).UTC()
	}
	if claims.SealedRefresh != "" {
		rt, err := c.encryptor.Decrypt(ctx, claims.SealedRefresh)
		if err != nil {
			return model.TokenPair{}, sessionError(fmt.Errorf("%w: unseal refresh token: %w", ErrInvalidSession, err))
		}
		pair.RefreshToken = rt
	}
	return pair, nil
}

// SealLogin stores the PKCE verifier and OAuth state between /auth/login and the callback.
func (c *Codec) SealLogin(ctx context.Context, verifier, state string) (string, error) {
	sealed, err := c.encryptor.Encrypt(ctx, verifier)
	if err != nil {
		return "", fmt.Errorf("seal verifier: %w", err)
	}
	return c.sign(loginClaims{
		SealedVerifier:   sealed,
		State:            state,
		RegisteredClaims: c.registered(subjectLogin, c.loginTTL),
	})
}

// OpenLogin returns the verifier and state sealed by SealLogin.
func (c *Codec) OpenLogin(ctx context.Context, token string) (verifier, state string, err error) {
	if token == "" {
		return "", "", sessionError(ErrNoSession)
	}
	claims := &loginClaims{}
	if err := c.parse(token, subjectLogin, claims); err != nil {
		return "", "", err
	}
	verifier, err = c.encryptor.Decrypt(ctx, claims.SealedVerifier)
	if err != nil {
		return "", "", sessionError(fmt.Errorf("%w: unseal verifier: %w", ErrInvalidSession, err))
	}
	return verifier, claims.State, nil
}

func (c *Codec) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

func (c *Codec) parse(token, subject string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(subject),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return sessionError(fmt.Errorf("%w: %w", ErrInvalidSession, err))
	}
	return nil
}

func sessionError(err error) error {
	return &apperr.AuthError{Op: "session", Err: err}
}
