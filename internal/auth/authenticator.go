// Package auth identifies callers. Accounts are keyed by wallet address and
// protected by a password; sessions are stateless JWTs.
package auth

import (
	"context"

	"github.com/mmynk/paysplit/internal/models"
)

// Authenticator defines the interface for authentication implementations.
// This abstraction allows swapping between different auth methods (password,
// signed wallet challenges, etc.) without changing the service layer code.
type Authenticator interface {
	// Register creates a new account for address with the given credential.
	// The credential format depends on the implementation.
	Register(ctx context.Context, address, displayName, credential string) (*models.User, error)

	// Authenticate verifies the credential for address and returns the user.
	Authenticate(ctx context.Context, address, credential string) (*models.User, error)

	// ValidateCredential checks if the credential meets the implementation's requirements.
	ValidateCredential(credential string) error
}
