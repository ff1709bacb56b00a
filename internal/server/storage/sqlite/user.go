package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/clinicauth/internal/models"
	"github.com/iudanet/clinicauth/internal/server/storage"
)

const userColumns = `
	id, phone, password, full_name, birth_date, email,
	passport_series, passport_number, passport_issue_date, passport_issued_by,
	onec_id, medcard_number, gender, created_at, updated_at
`

// rowScanner общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// UpsertUser creates user or merges profile into the existing one according to policy
func (s *Storage) UpsertUser(ctx context.Context, profile models.UserProfile, policy storage.UpsertPolicy) (*models.User, error) {
	if profile.Phone == "" {
		return nil, fmt.Errorf("phone is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	existing, err := getUser(ctx, tx, `WHERE phone = ?`, profile.Phone)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	var id int64

	switch {
	case existing == nil:
		id, err = insertUser(ctx, tx, profile, now)
		if err != nil {
			return nil, err
		}
	case policy.OnConflict == storage.ConflictFail:
		return nil, storage.ErrUserAlreadyExists
	default:
		id = existing.ID
		if err := mergeUser(ctx, tx, id, profile, now); err != nil {
			return nil, err
		}
	}

	user, err := getUser(ctx, tx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user upsert: %w", err)
	}

	return user, nil
}

func insertUser(ctx context.Context, tx *sql.Tx, p models.UserProfile, now time.Time) (int64, error) {
	if p.PasswordHash == "" {
		return 0, fmt.Errorf("password hash is required to create user")
	}

	query := `
		INSERT INTO users (
			phone, password, full_name, birth_date, email,
			passport_series, passport_number, passport_issue_date, passport_issued_by,
			onec_id, medcard_number, gender, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, query,
		p.Phone,
		p.PasswordHash,
		p.FullName,
		p.BirthDate,
		p.Email,
		p.PassportSeries,
		p.PassportNumber,
		p.PassportIssueDate,
		p.PassportIssuedBy,
		p.OnecID,
		p.MedcardNumber,
		p.Gender,
		now,
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, storage.ErrUserAlreadyExists
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted user id: %w", err)
	}

	return id, nil
}

// mergeUser обновляет только переданные (не nil) поля
func mergeUser(ctx context.Context, tx *sql.Tx, id int64, p models.UserProfile, now time.Time) error {
	query := `
		UPDATE users SET
			password = CASE WHEN ? = '' THEN password ELSE ? END,
			full_name = COALESCE(?, full_name),
			birth_date = COALESCE(?, birth_date),
			email = COALESCE(?, email),
			passport_series = COALESCE(?, passport_series),
			passport_number = COALESCE(?, passport_number),
			passport_issue_date = COALESCE(?, passport_issue_date),
			passport_issued_by = COALESCE(?, passport_issued_by),
			onec_id = COALESCE(?, onec_id),
			medcard_number = COALESCE(?, medcard_number),
			gender = COALESCE(?, gender),
			updated_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, query,
		p.PasswordHash,
		p.PasswordHash,
		p.FullName,
		p.BirthDate,
		p.Email,
		p.PassportSeries,
		p.PassportNumber,
		p.PassportIssueDate,
		p.PassportIssuedBy,
		p.OnecID,
		p.MedcardNumber,
		p.Gender,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// GetUserByPhone retrieves user by normalized phone
func (s *Storage) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return getUser(ctx, s.db, `WHERE phone = ?`, phone)
}

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return getUser(ctx, s.db, `WHERE id = ?`, id)
}

// querier общий интерфейс *sql.DB и *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getUser(ctx context.Context, q querier, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ` + where

	user, err := scanUser(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var (
		fullName, birthDate, email                                    sql.NullString
		passportSeries, passportNumber, passportIssue, passportIssuer sql.NullString
		onecID, medcard, gender                                       sql.NullString
	)

	err := row.Scan(
		&user.ID,
		&user.Phone,
		&user.PasswordHash,
		&fullName,
		&birthDate,
		&email,
		&passportSeries,
		&passportNumber,
		&passportIssue,
		&passportIssuer,
		&onecID,
		&medcard,
		&gender,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.FullName = nullString(fullName)
	user.BirthDate = nullString(birthDate)
	user.Email = nullString(email)
	user.PassportSeries = nullString(passportSeries)
	user.PassportNumber = nullString(passportNumber)
	user.PassportIssueDate = nullString(passportIssue)
	user.PassportIssuedBy = nullString(passportIssuer)
	user.OnecID = nullString(onecID)
	user.MedcardNumber = nullString(medcard)
	user.Gender = nullString(gender)

	return user, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
