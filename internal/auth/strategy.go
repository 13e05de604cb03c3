package auth

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// CredentialStrategy decides how the client authenticates to the token endpoint.
// Strategies are tried in order; the next one is used only after a 401.
type CredentialStrategy interface {
	Name() string
	// Apply mutates a copy of the OAuth2 config before a token request.
	Apply(cfg *oauth2.Config)
}

type authStyleStrategy struct {
	name       string
	style      oauth2.AuthStyle
	withSecret bool
}

func (s authStyleStrategy) Name() string { return s.name }

func (s authStyleStrategy) Apply(cfg *oauth2.Config) {
	cfg.Endpoint.AuthStyle = s.style
	if !s.withSecret {
		cfg.ClientSecret = ""
	}
}

// ClientIDInBody sends client_id as a form field and no secret, as public PKCE clients do.
func ClientIDInBody() CredentialStrategy {
	return authStyleStrategy{name: "body", style: oauth2.AuthStyleInParams}
}

// HTTPBasic presents the client id, and the client secret when one is configured,
// in an Authorization: Basic header.
func HTTPBasic() CredentialStrategy {
	return authStyleStrategy{name: "basic", style: oauth2.AuthStyleInHeader, withSecret: true}
}

// DefaultStrategies is body credentials first, then HTTP Basic.
func DefaultStrategies() []CredentialStrategy {
	return []CredentialStrategy{ClientIDInBody(), HTTPBasic()}
}

// StrategiesByName resolves configured strategy names.
func StrategiesByName(names []string) ([]CredentialStrategy, error) {
	if len(names) == 0 {
		return DefaultStrategies(), nil
	}
	out := make([]CredentialStrategy, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "body":
			out = append(out, ClientIDInBody())
		case "basic":
			out = append(out, HTTPBasic())
		default:
			return nil, fmt.Errorf("unknown credential strategy %q", name)
		}
	}
	return out, nil
}
