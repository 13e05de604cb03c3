package auth

import (
	"golang.org/x/oauth2"

	"github.com/danwrong/yotohero/internal/apperr"
)

// Challenge is a PKCE verifier/challenge pair. The verifier stays with the caller.
type Challenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// GenerateChallenge produces a fresh S256 PKCE pair.
func GenerateChallenge() Challenge {
	verifier := oauth2.GenerateVerifier()
	return Challenge{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    "S256",
	}
}

// BuildAuthorizationURL returns the authorize redirect for the given client.
// It performs no I/O.
func (m *Manager) BuildAuthorizationURL(clientID, redirectURI, challenge, state string) (string, error) {
	switch {
	case clientID == "":
		return "", apperr.Validation("client id is required to build the authorization url")
	case redirectURI == "":
		return "", apperr.Validation("redirect uri is required to build the authorization url")
	case challenge == "":
		return "", apperr.Validation("pkce challenge is required to build the authorization url")
	}

	cfg := *m.oauthConfig
	cfg.ClientID = clientID
	cfg.RedirectURL = redirectURI

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if m.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", m.audience))
	}
	return cfg.AuthCodeURL(state, opts...), nil
}
