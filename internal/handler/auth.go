package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/danwrong/yotohero/internal/auth"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/session"
)

// Authenticator is the part of auth.Manager the login flow needs.
type Authenticator interface {
	BuildAuthorizationURL(clientID, redirectURI, challenge, state string) (string, error)
	ExchangeCode(ctx context.Context, clientID, code, verifier, redirectURI string) (model.TokenPair, error)
}

// AuthConfig names the OAuth client and where the browser goes afterwards.
type AuthConfig struct {
	ClientID    string
	RedirectURL string
	FrontendURL string
	// DemoLogin enables /auth/demo, which issues a session without the
	// authorization server. Only the in-memory platform accepts it.
	DemoLogin bool
}

// AuthHandler runs the browser side of the PKCE login.
type AuthHandler struct {
	auth     Authenticator
	codec    *session.Codec
	sessions *Sessions
	cookies  CookiePolicy
	cfg      AuthConfig
	logger   *slog.Logger
}

func NewAuthHandler(a Authenticator, codec *session.Codec, cookies CookiePolicy, cfg AuthConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     a,
		codec:    codec,
		sessions: NewSessions(codec, cookies),
		cookies:  cookies,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "handler.auth"),
	}
}

// Login starts the authorization code flow. The verifier and state ride in a
// short-lived signed cookie until the callback.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	challenge := auth.GenerateChallenge()
	state := uuid.NewString()

	target, err := h.auth.BuildAuthorizationURL(h.cfg.ClientID, h.cfg.RedirectURL, challenge.Challenge, state)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, h.logger), "build authorization url failed", "login_failed", logging.Error(err))
		return errorResponse(http.StatusInternalServerError, "Login is not configured."), nil
	}

	sealed, err := h.codec.SealLogin(ctx, challenge.Verifier, state)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, h.logger), "seal login state failed", "login_failed", logging.Error(err))
		return errorResponse(http.StatusInternalServerError, "Login failed."), nil
	}

	loginCookie := h.cookies.Cookie(session.LoginCookieName, sealed, int(h.codec.LoginTTL().Seconds()))
	return redirect(target, loginCookie), nil
}

// Callback completes the flow and stores the token pair in the session cookie.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := logging.WithContext(ctx, h.logger)
	clearLogin := h.cookies.Cookie(session.LoginCookieName, "", 0)

	if denied := req.QueryStringParameters["error"]; denied != "" {
		logging.WarnWithContext(logger, "authorization denied", "login_denied",
			logging.String("error", denied),
			logging.String("description", req.QueryStringParameters["error_description"]),
		)
		return h.toFrontend("error=access_denied", clearLogin), nil
	}

	code := req.QueryStringParameters["code"]
	if code == "" {
		return withCookies(errorResponse(http.StatusBadRequest, "Missing code"), clearLogin), nil
	}

	verifier, state, err := h.codec.OpenLogin(ctx, GetCookie(req, session.LoginCookieName))
	if err != nil {
		logging.WarnWithContext(logger, "login state missing or invalid", "login_state_invalid", logging.Error(err))
		return withCookies(errorResponse(http.StatusBadRequest, "Login expired. Please try again."), clearLogin), nil
	}
	if state != req.QueryStringParameters["state"] {
		logging.WarnWithContext(logger, "login state mismatch", "login_state_invalid")
		return withCookies(errorResponse(http.StatusBadRequest, "Login state mismatch. Please try again."), clearLogin), nil
	}

	pair, err := h.auth.ExchangeCode(ctx, h.cfg.ClientID, code, verifier, h.cfg.RedirectURL)
	if err != nil {
		logging.ErrorWithContext(logger, "code exchange failed", "login_failed", logging.Error(err))
		return h.toFrontend("error=login_failed", clearLogin), nil
	}

	sessionCookie, err := h.sessions.Cookie(ctx, pair)
	if err != nil {
		logging.ErrorWithContext(logger, "seal session failed", "login_failed", logging.Error(err))
		return withCookies(errorResponse(http.StatusInternalServerError, "Login failed."), clearLogin), nil
	}

	logger.Info("login completed", logging.Bool("has_refresh_token", pair.RefreshToken != ""))
	return h.toFrontend("success=true", sessionCookie, clearLogin), nil
}

// DemoLogin issues a session holding a locally minted token. It is a JWT with
// a one hour exp so expiry checks behave normally.
func (h *AuthHandler) DemoLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if !h.cfg.DemoLogin {
		return errorResponse(http.StatusNotFound, "Not Found"), nil
	}

	exp := time.Now().Add(time.Hour)
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "demo-" + uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("demo"))
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	cookie, err := h.sessions.Cookie(ctx, model.TokenPair{AccessToken: access, TokenType: "Bearer", ExpiresAt: exp})
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, h.logger), "seal demo session failed", "login_failed", logging.Error(err))
		return errorResponse(http.StatusInternalServerError, "Login failed."), nil
	}
	return h.toFrontend("success=true", cookie), nil
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return withCookies(jsonResponse(http.StatusOK, map[string]string{"message": "Logged out successfully"}), h.sessions.Clear()), nil
}

// Status reports whether the caller has a readable session and when its
// access token expires.
func (h *AuthHandler) Status(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	pair, err := h.sessions.Tokens(ctx, req)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) && !errors.Is(err, session.ErrInvalidSession) {
			logging.WarnWithContext(logging.WithContext(ctx, h.logger), "open session failed", "session_invalid", logging.Error(err))
		}
		return jsonResponse(http.StatusOK, statusBody{}), nil
	}

	body := statusBody{Authenticated: true, CanRefresh: pair.RefreshToken != ""}
	if exp := auth.ExpiresAt(pair.AccessToken); !exp.IsZero() {
		body.ExpiresAt = &exp
	}
	return jsonResponse(http.StatusOK, body), nil
}

type statusBody struct {
	Authenticated bool       `json:"authenticated"`
	CanRefresh    bool       `json:"canRefresh"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func (h *AuthHandler) toFrontend(query string, cookies ...string) events.APIGatewayProxyResponse {
	return redirect(fmt.Sprintf("%s/?%s", h.cfg.FrontendURL, query), cookies...)
}
