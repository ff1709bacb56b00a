package storage

import (
	"context"
	"time"

	"github.com/iudanet/clinicauth/pkg/api"
)

// ProfileStorage хранит профиль пациента после успешного входа
type ProfileStorage interface {
	// SaveProfile сохраняет профиль, заменяя предыдущий
	SaveProfile(ctx context.Context, profile *Profile) error

	// GetProfile возвращает сохраненный профиль
	// Returns ErrProfileNotFound if nothing is saved
	GetProfile(ctx context.Context) (*Profile, error)

	// DeleteProfile удаляет профиль (logout)
	// Returns ErrProfileNotFound if nothing is saved
	DeleteProfile(ctx context.Context) error
}

// Profile профиль пациента и сведения о входе
type Profile struct {
	LoggedInAt time.Time `json:"logged_in_at"`
	Server     string    `json:"server"`
	Method     string    `json:"method"` // password или sms
	User       api.User  `json:"user"`
}
