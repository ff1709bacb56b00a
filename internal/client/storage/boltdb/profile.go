package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/clinicauth/internal/client/storage"
)

var profileKey = []byte("current")

// SaveProfile stores the logged in patient profile
func (s *Storage) SaveProfile(ctx context.Context, profile *storage.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketProfile)
		if bucket == nil {
			return fmt.Errorf("profile bucket not found")
		}
		if err := bucket.Put(profileKey, data); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		return nil
	})
}

// GetProfile retrieves the stored profile
func (s *Storage) GetProfile(ctx context.Context) (*storage.Profile, error) {
	var profile *storage.Profile

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketProfile)
		if bucket == nil {
			return fmt.Errorf("profile bucket not found")
		}

		data := bucket.Get(profileKey)
		if data == nil {
			return storage.ErrProfileNotFound
		}

		// data действителен только внутри транзакции
		profile = &storage.Profile{}
		if err := json.Unmarshal(data, profile); err != nil {
			return fmt.Errorf("failed to unmarshal profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// DeleteProfile removes the stored profile (logout)
func (s *Storage) DeleteProfile(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketProfile)
		if bucket == nil {
			return fmt.Errorf("profile bucket not found")
		}

		if bucket.Get(profileKey) == nil {
			return storage.ErrProfileNotFound
		}

		if err := bucket.Delete(profileKey); err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}
		return nil
	})
}
