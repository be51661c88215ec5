package bolt

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/storage"
)

// CreateUser stores a user and indexes it by address.
func (s *BoltStore) CreateUser(_ context.Context, user *models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketUsersByAddress)
		if idx.Get([]byte(user.Address)) != nil {
			return fmt.Errorf("user %s: %w", user.Address, storage.ErrAlreadyExists)
		}
		if err := put(tx.Bucket(bucketUsers), user.ID, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return idx.Put([]byte(user.Address), []byte(user.ID))
	})
}

// GetUserByAddress retrieves a user by wallet address.
func (s *BoltStore) GetUserByAddress(_ context.Context, address string) (*models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketUsersByAddress).Get([]byte(address))
		if id == nil {
			return &storage.NotFoundError{Entity: "user", ID: address}
		}
		return get(tx.Bucket(bucketUsers), "user", string(id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *BoltStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketUsers), "user", id, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
