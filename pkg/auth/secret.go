package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost      = 12
	SecretKeyLength = 32 // 256 bits
)

// HashSecret bcrypt-hashes a shared secret for storage in configuration
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hashedBytes), nil
}

// CompareSecret returns nil when secret matches the bcrypt hash
func CompareSecret(hashedSecret, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
}

// GenerateSecret returns SecretKeyLength random bytes, hex encoded
func GenerateSecret() (string, error) {
	bytes := make([]byte, SecretKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
