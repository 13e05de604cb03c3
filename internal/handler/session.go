package handler

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"

	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/session"
)

// Sessions reads and writes the sealed token pair carried by each request.
type Sessions struct {
	codec   *session.Codec
	cookies CookiePolicy
}

func NewSessions(codec *session.Codec, cookies CookiePolicy) *Sessions {
	return &Sessions{codec: codec, cookies: cookies}
}

// Tokens opens the session from the Authorization header or the session cookie.
// The header wins so CLI clients can skip cookies.
func (s *Sessions) Tokens(ctx context.Context, req events.APIGatewayProxyRequest) (model.TokenPair, error) {
	raw := bearerToken(req)
	if raw == "" {
		raw = GetCookie(req, session.CookieName)
	}
	if raw == "" {
		return model.TokenPair{}, session.ErrNoSession
	}
	return s.codec.Open(ctx, raw)
}

// Cookie seals pair into a Set-Cookie value.
func (s *Sessions) Cookie(ctx context.Context, pair model.TokenPair) (string, error) {
	sealed, err := s.codec.Seal(ctx, pair)
	if err != nil {
		return "", err
	}
	return s.cookies.Cookie(session.CookieName, sealed, int(s.codec.TTL().Seconds())), nil
}

// Clear expires the session cookie.
func (s *Sessions) Clear() string {
	return s.cookies.Cookie(session.CookieName, "", 0)
}

// Reseal returns resp with a fresh session cookie when refreshed is set.
// A sealing failure is returned so the caller can log it; resp is still usable.
func (s *Sessions) Reseal(ctx context.Context, resp events.APIGatewayProxyResponse, pair model.TokenPair, refreshed bool) (events.APIGatewayProxyResponse, error) {
	if !refreshed {
		return resp, nil
	}
	cookie, err := s.Cookie(ctx, pair)
	if err != nil {
		return resp, err
	}
	return withCookies(resp, cookie), nil
}

func unauthorized(err error) events.APIGatewayProxyResponse {
	msg := "Please log in."
	if errors.Is(err, session.ErrInvalidSession) {
		msg = "Your session has expired. Please log in again."
	}
	return jsonResponse(401, errorBody{Error: msg, Kind: "authentication"})
}
