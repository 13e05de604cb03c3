package secret

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/config"
)

type fakeSSMClient struct {
	params map[string]string
	calls  []string
}

func (f *fakeSSMClient) GetParameter(_ context.Context, input *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls = append(f.calls, *input.Name)
	val, ok := f.params[*input.Name]
	if !ok {
		return nil, fmt.Errorf("parameter not found: %s", *input.Name)
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:  input.Name,
			Value: aws.String(val),
		},
	}, nil
}

func TestSSMResolver_GetSecret_Success(t *testing.T) {
	client := &fakeSSMClient{
		params: map[string]string{
			"/yotohero/tts-api-key": "xi-key",
		},
	}
	resolver := NewSSMResolver(client)

	val, err := resolver.GetSecret(context.Background(), "/yotohero/tts-api-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "xi-key" {
		t.Fatalf("expected %q, got %q", "xi-key", val)
	}
}

func TestSSMResolver_GetSecret_NotFound(t *testing.T) {
	resolver := NewSSMResolver(&fakeSSMClient{params: map[string]string{}})

	if _, err := resolver.GetSecret(context.Background(), "/yotohero/nonexistent"); err == nil {
		t.Fatal("expected error for missing parameter, got nil")
	}
}

func TestEnvResolver_GetSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "env-secret-value")

	val, err := NewEnvResolver().GetSecret(context.Background(), "/yotohero/session-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "env-secret-value" {
		t.Fatalf("expected %q, got %q", "env-secret-value", val)
	}

	_, err = NewEnvResolver().GetSecret(context.Background(), "/yotohero/nonexistent-secret")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParamNameToEnvVar(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/yotohero/tts-api-key", "TTS_API_KEY"},
		{"/yotohero/client-secret", "CLIENT_SECRET"},
		{"/yotohero/api-gateway-secret", "API_GATEWAY_SECRET"},
		{"plain", "PLAIN"},
	}

	for _, tc := range tests {
		if got := ParamNameToEnvVar(tc.input); got != tc.expected {
			t.Errorf("ParamNameToEnvVar(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestLoadPrefersConfiguredValues(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.APIKey = "from-config"

	client := &fakeSSMClient{params: map[string]string{
		cfg.Secrets.TTSKeyParam:        "from-ssm",
		cfg.Secrets.SessionSecretParam: "signing-key",
		cfg.Secrets.ClientSecretParam:  "client-secret",
		cfg.Secrets.LLMKeyParam:        "llm",
		cfg.Secrets.OriginVerifyParam:  "origin",
	}}

	b, err := Load(context.Background(), NewSSMResolver(client), &cfg)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if b.TTSAPIKey != "from-config" {
		t.Errorf("TTSAPIKey = %q, want from-config", b.TTSAPIKey)
	}
	if b.SessionSecret != "signing-key" {
		t.Errorf("SessionSecret = %q", b.SessionSecret)
	}
	for _, name := range client.calls {
		if name == cfg.Secrets.TTSKeyParam {
			t.Error("configured TTS key should not be fetched")
		}
	}
}

func TestLoadRequiresTTSKey(t *testing.T) {
	cfg := config.Default()
	r := &EnvResolver{lookup: func(string) (string, bool) { return "", false }}

	_, err := Load(context.Background(), r, &cfg)
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("expected configuration failure, got %v", err)
	}
}

func TestLoadToleratesMissingOptionalSecrets(t *testing.T) {
	cfg := config.Default()
	r := &EnvResolver{lookup: func(name string) (string, bool) {
		if name == "TTS_API_KEY" {
			return "k", true
		}
		return "", false
	}}

	b, err := Load(context.Background(), r, &cfg)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if b.TTSAPIKey != "k" || b.SessionSecret != "" {
		t.Errorf("unexpected bundle: %+v", b)
	}
}
