package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	pkgauth "github.com/BradenHooton/quizgate/pkg/auth"
)

// ErrAdminKeyNotConfigured is returned when neither a plain nor a hashed key is set
var ErrAdminKeyNotConfigured = errors.New("admin key not configured")

// AdminKeyVerifier checks presented management secrets against the
// configured one. With a bcrypt hash configured the plain key is ignored.
type AdminKeyVerifier struct {
	digest [sha256.Size]byte
	hash   string
}

// NewAdminKeyVerifier creates a verifier from the plain key or its bcrypt hash
func NewAdminKeyVerifier(key, bcryptHash string) (*AdminKeyVerifier, error) {
	if bcryptHash != "" {
		return &AdminKeyVerifier{hash: bcryptHash}, nil
	}
	if key == "" {
		return nil, ErrAdminKeyNotConfigured
	}
	return &AdminKeyVerifier{digest: sha256.Sum256([]byte(key))}, nil
}

// Verify reports whether presented matches the configured secret. Both sides
// are hashed to a fixed length before the constant-time comparison, so the
// comparison time does not depend on the length of the guess.
func (v *AdminKeyVerifier) Verify(presented string) bool {
	if presented == "" {
		return false
	}
	if v.hash != "" {
		return pkgauth.CompareSecret(v.hash, presented) == nil
	}
	presentedDigest := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(presentedDigest[:], v.digest[:]) == 1
}
