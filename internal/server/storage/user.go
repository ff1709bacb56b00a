package storage

import (
	"context"

	"github.com/iudanet/clinicauth/internal/models"
)

// ConflictAction определяет поведение upsert при существующем пользователе с тем же телефоном
type ConflictAction int

const (
	// ConflictFail возвращает ErrUserAlreadyExists
	ConflictFail ConflictAction = iota
	// ConflictMerge обновляет существующего пользователя: новое значение побеждает, только если оно не nil
	ConflictMerge
)

// UpsertPolicy политика создания/обновления пользователя
type UpsertPolicy struct {
	OnConflict ConflictAction
}

// UserStorage defines interface for user data persistence
type UserStorage interface {
	// UpsertUser creates user or, depending on policy, merges profile into the existing one
	// Insert requires non-empty PasswordHash
	// Returns ErrUserAlreadyExists when policy is ConflictFail and phone is taken
	UpsertUser(ctx context.Context, profile models.UserProfile, policy UpsertPolicy) (*models.User, error)

	// GetUserByPhone retrieves user by normalized phone
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)

	// GetUserByID retrieves user by ID
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}
