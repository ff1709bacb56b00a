// Package otp issues and verifies one-time SMS codes bound to a login session.
package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/clinicauth/internal/crypto"
	"github.com/iudanet/clinicauth/internal/models"
	"github.com/iudanet/clinicauth/internal/server/storage"
	"github.com/iudanet/clinicauth/internal/validation"
)

const (
	// DefaultTTL срок действия кода
	DefaultTTL = 5 * time.Minute
	// DefaultMaxAttempts количество попыток ввода одного кода
	DefaultMaxAttempts = 3
)

var (
	// ErrNoChallenge код еще не был выпущен
	ErrNoChallenge = errors.New("otp was not issued")
	// ErrExpired срок действия кода истек
	ErrExpired = errors.New("otp expired")
	// ErrBlocked попытки ввода кода исчерпаны
	ErrBlocked = errors.New("otp blocked")
	// ErrStale код был перевыпущен во время проверки
	ErrStale = errors.New("otp challenge replaced")
)

// MismatchError неверный код. AttemptsLeft оставшиеся попытки после списания.
type MismatchError struct {
	AttemptsLeft int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("otp mismatch, %d attempts left", e.AttemptsLeft)
}

// CooldownError повторная отправка запрошена слишком рано
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp resend available in %s", e.RetryAfter)
}

// Config параметры выпуска кодов
type Config struct {
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration // 0 отключает ограничение
}

// Issued выпущенный код
type Issued struct {
	ExpiresAt time.Time
	Code      string
}

// Issuer выпускает и проверяет коды
type Issuer struct {
	store    storage.SessionStorage
	hasher   *crypto.Hasher
	sender   Sender
	logger   *slog.Logger
	now      func() time.Time
	generate func() (string, error)
	resend   ResendPolicy
	cfg      Config
}

// NewIssuer создает Issuer. Нулевые значения cfg заменяются значениями по умолчанию.
func NewIssuer(store storage.SessionStorage, hasher *crypto.Hasher, sender Sender, cfg Config, logger *slog.Logger) *Issuer {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Issuer{
		store:    store,
		hasher:   hasher,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
		generate: crypto.GenerateOTP,
		resend:   ResendPolicy{Cooldown: cfg.ResendCooldown},
		cfg:      cfg,
	}
}

// SetClock подменяет источник времени
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// Issue выпускает новый код для сессии, сохраняет его хеш и отправляет SMS.
// Предыдущий код перестает действовать.
func (i *Issuer) Issue(ctx context.Context, session *models.LoginSession) (*Issued, error) {
	code, err := i.generate()
	if err != nil {
		return nil, err
	}

	hash, err := i.hasher.Hash(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash otp: %w", err)
	}

	now := i.now()
	challenge := models.OTPChallenge{
		CodeHash:     hash,
		IssuedAt:     now,
		ExpiresAt:    now.Add(i.cfg.TTL),
		AttemptsLeft: i.cfg.MaxAttempts,
	}

	if err := i.store.SaveOTPChallenge(ctx, session.SessionID, challenge); err != nil {
		return nil, fmt.Errorf("failed to save otp: %w", err)
	}

	if err := i.sender.Send(ctx, session.Phone, code); err != nil {
		return nil, fmt.Errorf("failed to send otp: %w", err)
	}

	i.logger.InfoContext(ctx, "otp issued",
		slog.String("session_id", session.SessionID),
		slog.String("phone", validation.MaskPhone(session.Phone)),
		slog.Time("expires_at", challenge.ExpiresAt))

	return &Issued{Code: code, ExpiresAt: challenge.ExpiresAt}, nil
}

// CheckResend проверяет политику повторной отправки.
// Возвращает *CooldownError, если отправлять рано.
func (i *Issuer) CheckResend(session *models.LoginSession) error {
	if wait := i.resend.Wait(session.Challenge(), i.now()); wait > 0 {
		return &CooldownError{RetryAfter: wait}
	}
	return nil
}

// Verify проверяет введенный код.
// При несовпадении атомарно списывает одну попытку и возвращает *MismatchError;
// при совпадении переводит сессию к вводу пароля.
func (i *Issuer) Verify(ctx context.Context, session *models.LoginSession, rawCode string) error {
	challenge := session.Challenge()
	if challenge == nil {
		return ErrNoChallenge
	}

	if challenge.Expired(i.now()) {
		return ErrExpired
	}

	if challenge.AttemptsLeft <= 0 {
		return ErrBlocked
	}

	// код без цифр считается неверным и тоже списывает попытку
	code, err := validation.CleanOTPCode(rawCode)
	if err != nil {
		return i.registerMismatch(ctx, session, challenge.CodeHash)
	}

	err = i.hasher.Verify(code, challenge.CodeHash)
	switch {
	case errors.Is(err, crypto.ErrMismatch):
		return i.registerMismatch(ctx, session, challenge.CodeHash)
	case err != nil:
		return fmt.Errorf("failed to verify otp: %w", err)
	}

	err = i.store.RecordOTPVerified(ctx, session.SessionID, challenge.CodeHash)
	switch {
	case errors.Is(err, storage.ErrOTPChallengeChanged):
		return ErrStale
	case err != nil:
		return fmt.Errorf("failed to record otp verification: %w", err)
	}

	return nil
}

func (i *Issuer) registerMismatch(ctx context.Context, session *models.LoginSession, codeHash string) error {
	left, err := i.store.DecrementOTPAttempts(ctx, session.SessionID, codeHash)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrOTPAttemptsExhausted):
			return ErrBlocked
		case errors.Is(err, storage.ErrOTPChallengeChanged):
			return ErrStale
		}
		return fmt.Errorf("failed to decrement otp attempts: %w", err)
	}

	i.logger.InfoContext(ctx, "otp mismatch",
		slog.String("session_id", session.SessionID),
		slog.Int("attempts_left", left))

	return &MismatchError{AttemptsLeft: left}
}
