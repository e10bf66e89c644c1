package sesame

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// SecretSize is the length in bytes of a device pairing secret.
const SecretSize = 16

// Secret is the opaque pairing secret shared with peers. The all-zero value
// means "not registered"; the engine never issues a zero secret.
type Secret [SecretSize]byte

// SecretFromBytes copies b into a Secret. b must be exactly SecretSize long.
func SecretFromBytes(b []byte) (Secret, error) {
	var s Secret
	if len(b) != SecretSize {
		return s, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSecret, len(b), SecretSize)
	}
	copy(s[:], b)
	return s, nil
}

// ParseSecret decodes a hex-encoded secret.
func ParseSecret(s string) (Secret, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Secret{}, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return SecretFromBytes(b)
}

// IsZero reports whether s is the unregistered sentinel.
func (s Secret) IsZero() bool {
	var zero Secret
	return subtle.ConstantTimeCompare(s[:], zero[:]) == 1
}

// Hex returns the hex encoding of the secret.
func (s Secret) Hex() string {
	return hex.EncodeToString(s[:])
}

// String never reveals secret material.
func (s Secret) String() string {
	if s.IsZero() {
		return "secret(zero)"
	}
	return "secret(set)"
}

// SecretStore persists the pairing secret across restarts.
//
// Load returns found=false when nothing was ever saved. Save and Erase must
// be durable when they return nil; Erase overwrites with the zero secret.
type SecretStore interface {
	Load(ctx context.Context) (secret Secret, found bool, err error)
	Save(ctx context.Context, secret Secret) error
	Erase(ctx context.Context) error
}

// RegistrationState is the server's pairing state.
// Registered is true iff Secret is non-zero.
type RegistrationState struct {
	Secret Secret
}

// Registered reports whether a non-zero secret is held.
func (r RegistrationState) Registered() bool {
	return !r.Secret.IsZero()
}
