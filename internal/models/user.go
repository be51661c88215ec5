package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account identified by its wallet address.
// Address ownership is not proven here; signing is the wallet's concern.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Address is the checksummed wallet address (unique).
	Address string

	// DisplayName is shown in clients.
	DisplayName string

	// PasswordHash is the bcrypt hash of the account password.
	PasswordHash string

	CreatedAt int64
	UpdatedAt int64
}

// NewUser builds a user with a fresh ID and timestamps.
func NewUser(address, displayName, passwordHash string) *User {
	now := time.Now().Unix()
	return &User{
		ID:           uuid.New().String(),
		Address:      address,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
