// Package crypto seals refresh tokens before they leave the server inside a
// session cookie.
package crypto

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Encryptor encrypts short strings to an opaque, transport-safe form.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// KMSAPI is the subset of *kms.Client used by KMSService.
type KMSAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSService implements Encryptor using AWS KMS.
type KMSService struct {
	client  KMSAPI
	keyID   string
	context map[string]string
}

// NewKMSService creates a KMSService. keyID may be a key ID, ARN or alias
// such as "alias/yotohero-token-key".
func NewKMSService(client KMSAPI, keyID string) *KMSService {
	return &KMSService{
		client:  client,
		keyID:   keyID,
		context: map[string]string{"purpose": "yotohero-session"},
	}
}

// Encrypt returns base64 ciphertext bound to the session encryption context.
func (s *KMSService) Encrypt(ctx context.Context, plaintext string) (string, error) {
	result, err := s.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(s.keyID),
		Plaintext:         []byte(plaintext),
		EncryptionContext: s.context,
	})
	if err != nil {
		return "", fmt.Errorf("kms encrypt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(result.CiphertextBlob), nil
}

func (s *KMSService) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	result, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    decoded,
		KeyId:             aws.String(s.keyID),
		EncryptionContext: s.context,
	})
	if err != nil {
		return "", fmt.Errorf("kms decrypt: %w", err)
	}
	return string(result.Plaintext), nil
}
