package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/clinicauth/internal/models"
	"github.com/iudanet/clinicauth/internal/server/storage"
)

// значения колонки state
const (
	stateDocPending      = "doc_pending"
	stateOTPPending      = "otp_pending"
	statePasswordPending = "password_pending"
)

const sessionColumns = `
	session_id, phone, created_at, expires_at, state, doc_last_digits,
	otp_code_hash, otp_issued_at, otp_expires_at, otp_attempts_left,
	remote_code, remote_full_name, remote_birth_date, remote_gender, remote_medcard, remote_email
`

// CreateSession удаляет прежние сессии телефона и создает новую в одной транзакции
func (s *Storage) CreateSession(ctx context.Context, params storage.NewSession) (*models.LoginSession, error) {
	if params.Phone == "" {
		return nil, fmt.Errorf("phone is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM login_sessions WHERE phone = ?`, params.Phone); err != nil {
		return nil, fmt.Errorf("failed to delete previous sessions: %w", err)
	}

	session := &models.LoginSession{
		SessionID: uuid.New().String(),
		Phone:     params.Phone,
		CreatedAt: params.CreatedAt,
		ExpiresAt: params.ExpiresAt,
		State:     models.DocPending{},
		Remote:    models.RemoteProfile{}.Merge(&params.Remote),
	}

	query := `
		INSERT INTO login_sessions (
			session_id, phone, created_at, expires_at, state,
			remote_code, remote_full_name, remote_birth_date, remote_gender, remote_medcard, remote_email
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		session.SessionID,
		session.Phone,
		session.CreatedAt.UnixMilli(),
		session.ExpiresAt.UnixMilli(),
		stateDocPending,
		session.Remote.Code,
		session.Remote.FullName,
		session.Remote.BirthDate,
		session.Remote.Gender,
		session.Remote.MedcardNumber,
		session.Remote.Email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session: %w", err)
	}

	return session, nil
}

// GetSession возвращает сессию по идентификатору, срок действия не проверяется
func (s *Storage) GetSession(ctx context.Context, sessionID string) (*models.LoginSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM login_sessions WHERE session_id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, err
	}

	return session, nil
}

// RecordDocVerification переводит сессию DocPending -> OTPPending и дополняет снимок профиля
func (s *Storage) RecordDocVerification(ctx context.Context, sessionID, digits string, remote models.RemoteProfile) error {
	query := `
		UPDATE login_sessions SET
			state = ?,
			doc_last_digits = ?,
			remote_code = COALESCE(NULLIF(?, ''), remote_code),
			remote_full_name = COALESCE(NULLIF(?, ''), remote_full_name),
			remote_birth_date = COALESCE(NULLIF(?, ''), remote_birth_date),
			remote_gender = COALESCE(NULLIF(?, ''), remote_gender),
			remote_medcard = COALESCE(NULLIF(?, ''), remote_medcard),
			remote_email = COALESCE(NULLIF(?, ''), remote_email)
		WHERE session_id = ? AND state = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		stateOTPPending,
		digits,
		remote.Code,
		remote.FullName,
		remote.BirthDate,
		remote.Gender,
		remote.MedcardNumber,
		remote.Email,
		sessionID,
		stateDocPending,
	)
	if err != nil {
		return fmt.Errorf("failed to record doc verification: %w", err)
	}

	return s.checkTransition(ctx, result, sessionID, storage.ErrSessionStateConflict)
}

// SaveOTPChallenge сохраняет новый код, сбрасывая предыдущее подтверждение кода
func (s *Storage) SaveOTPChallenge(ctx context.Context, sessionID string, challenge models.OTPChallenge) error {
	if challenge.CodeHash == "" {
		return fmt.Errorf("otp code hash is required")
	}
	if challenge.AttemptsLeft < 0 {
		return fmt.Errorf("otp attempts cannot be negative")
	}

	query := `
		UPDATE login_sessions SET
			state = ?,
			otp_code_hash = ?,
			otp_issued_at = ?,
			otp_expires_at = ?,
			otp_attempts_left = ?
		WHERE session_id = ? AND state IN (?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		stateOTPPending,
		challenge.CodeHash,
		challenge.IssuedAt.UnixMilli(),
		challenge.ExpiresAt.UnixMilli(),
		challenge.AttemptsLeft,
		sessionID,
		stateOTPPending,
		statePasswordPending,
	)
	if err != nil {
		return fmt.Errorf("failed to save otp challenge: %w", err)
	}

	return s.checkTransition(ctx, result, sessionID, storage.ErrSessionStateConflict)
}

// RecordOTPVerified переводит сессию OTPPending -> PasswordPending,
// если действующий код все еще имеет хеш codeHash
func (s *Storage) RecordOTPVerified(ctx context.Context, sessionID, codeHash string) error {
	query := `
		UPDATE login_sessions SET
			state = ?,
			otp_code_hash = NULL,
			otp_issued_at = NULL,
			otp_expires_at = NULL,
			otp_attempts_left = 0
		WHERE session_id = ? AND state = ? AND otp_code_hash = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		statePasswordPending,
		sessionID,
		stateOTPPending,
		codeHash,
	)
	if err != nil {
		return fmt.Errorf("failed to record otp verification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	state, err := s.sessionState(ctx, sessionID)
	if err != nil {
		return err
	}
	if state != stateOTPPending {
		return storage.ErrSessionStateConflict
	}

	return storage.ErrOTPChallengeChanged
}

// DecrementOTPAttempts атомарно уменьшает число попыток кода с хешем codeHash,
// не опускаясь ниже нуля
func (s *Storage) DecrementOTPAttempts(ctx context.Context, sessionID, codeHash string) (int, error) {
	query := `
		UPDATE login_sessions
		SET otp_attempts_left = otp_attempts_left - 1
		WHERE session_id = ? AND state = ? AND otp_code_hash = ? AND otp_attempts_left > 0
		RETURNING otp_attempts_left
	`

	var left int
	err := s.db.QueryRowContext(ctx, query, sessionID, stateOTPPending, codeHash).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to decrement otp attempts: %w", err)
	}

	var (
		state   string
		current sql.NullString
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT state, otp_code_hash FROM login_sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&state, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get otp challenge: %w", err)
	}

	if state != stateOTPPending || current.String != codeHash {
		return 0, storage.ErrOTPChallengeChanged
	}

	return 0, storage.ErrOTPAttemptsExhausted
}

// DeleteSession удаляет сессию; отсутствие сессии не считается ошибкой
func (s *Storage) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions удаляет сессии, истекшие до now
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// checkTransition различает отсутствующую сессию и неподходящий шаг, когда UPDATE не затронул строк
func (s *Storage) checkTransition(ctx context.Context, result sql.Result, sessionID string, conflict error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	if _, err := s.sessionState(ctx, sessionID); err != nil {
		return err
	}

	return conflict
}

func (s *Storage) sessionState(ctx context.Context, sessionID string) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM login_sessions WHERE session_id = ?`, sessionID).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to get session state: %w", err)
	}
	return state, nil
}

func scanSession(row rowScanner) (*models.LoginSession, error) {
	var (
		session                                    models.LoginSession
		createdAt, expiresAt                       int64
		state                                      string
		docDigits, codeHash                        sql.NullString
		issuedAt, otpExpiresAt                     sql.NullInt64
		attemptsLeft                               int
		code, fullName, birthDate, gender, medcard sql.NullString
		email                                      sql.NullString
	)

	err := row.Scan(
		&session.SessionID,
		&session.Phone,
		&createdAt,
		&expiresAt,
		&state,
		&docDigits,
		&codeHash,
		&issuedAt,
		&otpExpiresAt,
		&attemptsLeft,
		&code,
		&fullName,
		&birthDate,
		&gender,
		&medcard,
		&email,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	session.CreatedAt = time.UnixMilli(createdAt)
	session.ExpiresAt = time.UnixMilli(expiresAt)
	session.Remote = models.RemoteProfile{
		Code:          nullString(code),
		FullName:      nullString(fullName),
		BirthDate:     nullString(birthDate),
		Gender:        nullString(gender),
		MedcardNumber: nullString(medcard),
		Email:         nullString(email),
	}

	switch state {
	case stateDocPending:
		session.State = models.DocPending{}
	case stateOTPPending:
		if !docDigits.Valid {
			return nil, fmt.Errorf("%w: %s without document digits", storage.ErrCorruptSession, state)
		}
		st := models.OTPPending{DocLastDigits: docDigits.String}
		if codeHash.Valid {
			if !issuedAt.Valid || !otpExpiresAt.Valid {
				return nil, fmt.Errorf("%w: otp code without issue or expiry time", storage.ErrCorruptSession)
			}
			st.Challenge = &models.OTPChallenge{
				CodeHash:     codeHash.String,
				IssuedAt:     time.UnixMilli(issuedAt.Int64),
				ExpiresAt:    time.UnixMilli(otpExpiresAt.Int64),
				AttemptsLeft: attemptsLeft,
			}
		}
		session.State = st
	case statePasswordPending:
		if !docDigits.Valid {
			return nil, fmt.Errorf("%w: %s without document digits", storage.ErrCorruptSession, state)
		}
		session.State = models.PasswordPending{DocLastDigits: docDigits.String}
	default:
		return nil, fmt.Errorf("%w: unknown state %q", storage.ErrCorruptSession, state)
	}

	return &session, nil
}
