package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
)

// ExpiryMargin is how far ahead of exp an access token is already treated as expired.
const ExpiryMargin = 5 * time.Minute

// Manager keeps an access/refresh token pair usable. It holds no tokens itself;
// the pair travels with the caller's session.
type Manager struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
	strategies  []CredentialStrategy
	audience    string
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStrategies sets the ordered credential strategies for the code exchange.
func WithStrategies(strategies ...CredentialStrategy) Option {
	return func(m *Manager) {
		if len(strategies) > 0 {
			m.strategies = strategies
		}
	}
}

// WithAudience adds an audience parameter to authorization requests.
func WithAudience(audience string) Option {
	return func(m *Manager) {
		m.audience = audience
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.NewComponentLogger(logger, "auth")
	}
}

// NewManager creates a Manager. The oauthConfig should be constructed by the
// caller from application config.
func NewManager(oauthConfig *oauth2.Config, opts ...Option) *Manager {
	m := &Manager{
		oauthConfig: oauthConfig,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		strategies:  DefaultStrategies(),
		now:         time.Now,
		logger:      logging.NewComponentLogger(nil, "auth"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the OAuth2 config.
func (m *Manager) Config() *oauth2.Config {
	return m.oauthConfig
}

// ExchangeCode trades an authorization code and PKCE verifier for a token pair.
// Strategies are attempted in order and the next is used only after an HTTP 401.
func (m *Manager) ExchangeCode(ctx context.Context, clientID, code, verifier, redirectURI string) (model.TokenPair, error) {
	if code == "" {
		return model.TokenPair{}, apperr.Validation("authorization code is required")
	}
	if verifier == "" {
		return model.TokenPair{}, apperr.Validation("pkce verifier is required")
	}

	ctx = m.withClient(ctx)
	var lastErr error
	for i, strategy := range m.strategies {
		cfg := m.configFor(clientID, strategy)
		cfg.RedirectURL = redirectURI

		tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
		if err == nil {
			m.logger.Info("authorization code exchanged", logging.String("strategy", strategy.Name()))
			return pairFromToken(tok, ""), nil
		}

		lastErr = err
		if !isUnauthorized(err) {
			break
		}
		if i < len(m.strategies)-1 {
			m.logger.Debug("token endpoint rejected credentials, trying next strategy",
				logging.String("strategy", strategy.Name()),
				logging.String("next", m.strategies[i+1].Name()),
			)
		}
	}
	return model.TokenPair{}, authError("exchange", lastErr)
}

// Refresh runs the refresh-token grant with the first credential strategy.
// The old refresh token is kept when the server does not rotate it.
func (m *Manager) Refresh(ctx context.Context, refreshToken, clientID string) (model.TokenPair, error) {
	if refreshToken == "" {
		return model.TokenPair{}, &apperr.AuthError{Op: "refresh", Description: "no refresh token available"}
	}
	if len(m.strategies) == 0 {
		return model.TokenPair{}, apperr.Wrap(apperr.ErrConfiguration, "auth", "refresh", "no credential strategies configured", nil)
	}

	cfg := m.configFor(clientID, m.strategies[0])
	src := cfg.TokenSource(m.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return model.TokenPair{}, authError("refresh", err)
	}
	return pairFromToken(tok, refreshToken), nil
}

// IsExpired reports whether accessToken is unusable: undecodable, missing exp,
// or expiring within ExpiryMargin. The signature is not verified.
func (m *Manager) IsExpired(accessToken string) bool {
	exp, ok := expiryOf(accessToken)
	if !ok {
		return true
	}
	return !m.now().Add(ExpiryMargin).Before(exp)
}

// EnsureValid returns pair unchanged when its access token is still usable.
// Otherwise it refreshes and reports refreshed=true; storing the new pair is up to the caller.
func (m *Manager) EnsureValid(ctx context.Context, pair model.TokenPair) (model.TokenPair, bool, error) {
	if !m.IsExpired(pair.AccessToken) {
		return pair, false, nil
	}
	if pair.RefreshToken == "" {
		return model.TokenPair{}, false, &apperr.AuthError{Op: "refresh", Description: "access token expired and no refresh token available"}
	}

	m.logger.Info("access token expired, refreshing")
	refreshed, err := m.Refresh(ctx, pair.RefreshToken, m.oauthConfig.ClientID)
	if err != nil {
		return model.TokenPair{}, false, err
	}
	return refreshed, true, nil
}

func (m *Manager) configFor(clientID string, strategy CredentialStrategy) oauth2.Config {
	cfg := *m.oauthConfig
	if clientID != "" {
		cfg.ClientID = clientID
	}
	strategy.Apply(&cfg)
	return cfg
}

func (m *Manager) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func pairFromToken(tok *oauth2.Token, previousRefresh string) model.TokenPair {
	pair := model.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = previousRefresh
	}
	if pair.TokenType == "" {
		pair.TokenType = "Bearer"
	}
	return pair
}

func isUnauthorized(err error) bool {
	var rerr *oauth2.RetrieveError
	return errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusUnauthorized
}

func authError(op string, err error) error {
	aerr := &apperr.AuthError{Op: op, Err: err}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		aerr.Code = rerr.ErrorCode
		aerr.Description = rerr.ErrorDescription
		if rerr.Response != nil {
			aerr.Status = rerr.Response.StatusCode
		}
	}
	return aerr
}
