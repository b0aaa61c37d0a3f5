// Package auth handles credentials, session tokens and request authentication.
//
// The Identity Store never compares raw passwords itself. It goes through a
// CredentialHasher, so the storage format of credentials is a pluggable
// decision made in server.New rather than baked into the store.
//
// The default hasher is bcrypt:
//   - a random salt per hash (same password → different hashes)
//   - the salt and cost are embedded in the output, no extra column needed
//   - deliberately slow, which makes offline guessing expensive
//
// Hash format:
//
//	$2a$12$<22-char salt><31-char hash>
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// CredentialHasher turns a plaintext password into a storable credential
// and checks a plaintext against a stored credential.
//
// Verify returns nil on a match and a non-nil error otherwise.
type CredentialHasher interface {
	Hash(plaintext string) (string, error)
	Verify(stored, plaintext string) error
}

var _ CredentialHasher = (*PasswordService)(nil)

// PasswordService is the bcrypt CredentialHasher.
//
// The cost is a field so tests can use bcrypt.MinCost (4) and run in
// milliseconds instead of ~250ms per hash.
type PasswordService struct {
	cost int
}

// NewPasswordServiceWithCost creates a PasswordService with a custom cost.
// Costs outside bcrypt's range are rejected.
func NewPasswordServiceWithCost(cost int) (*PasswordService, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return &PasswordService{cost: cost}, nil
}

// Hash hashes the given plaintext password with bcrypt.
//
// Returns an error if the plaintext is longer than 72 bytes: bcrypt would
// silently ignore everything past that point.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
// The comparison inside bcrypt is constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
