package crypto

import (
	"context"
	"strings"
)

const mockPrefix = "mock:"

// MockEncryptor tags plaintext with a prefix. Local development only.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	return mockPrefix + plaintext, nil
}

func (m *MockEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, mockPrefix), nil
}
