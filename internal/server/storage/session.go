package storage

import (
	"context"
	"time"

	"github.com/iudanet/clinicauth/internal/models"
)

// NewSession параметры создаваемой сессии входа
type NewSession struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Remote    models.RemoteProfile
	Phone     string
}

// SessionStorage defines interface for login session persistence
type SessionStorage interface {
	// CreateSession deletes any session of the phone and inserts a new one in DocPending step
	// Both statements run in one transaction
	CreateSession(ctx context.Context, params NewSession) (*models.LoginSession, error)

	// GetSession retrieves session by ID. Expiry is not checked here
	// Returns ErrSessionNotFound if session doesn't exist
	GetSession(ctx context.Context, sessionID string) (*models.LoginSession, error)

	// RecordDocVerification moves session from DocPending to OTPPending
	// and merges remote snapshot (non-nil values win)
	// Returns ErrSessionStateConflict if document is already verified
	RecordDocVerification(ctx context.Context, sessionID, digits string, remote models.RemoteProfile) error

	// SaveOTPChallenge stores a fresh challenge and moves session to OTPPending,
	// resetting a previous otp verification
	// Returns ErrSessionStateConflict if document is not verified
	SaveOTPChallenge(ctx context.Context, sessionID string, challenge models.OTPChallenge) error

	// RecordOTPVerified moves session from OTPPending to PasswordPending
	// only if the outstanding challenge still has codeHash
	// Returns ErrOTPChallengeChanged otherwise
	RecordOTPVerified(ctx context.Context, sessionID, codeHash string) error

	// DecrementOTPAttempts atomically decrements attempts of the challenge with codeHash, floor at zero
	// Returns remaining attempts, ErrOTPAttemptsExhausted if nothing was left
	// or ErrOTPChallengeChanged if the challenge was replaced or already verified
	DecrementOTPAttempts(ctx context.Context, sessionID, codeHash string) (int, error)

	// DeleteSession removes session. Deleting a missing session is not an error
	DeleteSession(ctx context.Context, sessionID string) error

	// DeleteExpiredSessions removes sessions expired before now
	// Returns number of deleted sessions
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}
