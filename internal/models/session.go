package models

import "time"

// Step шаг сценария входа/регистрации
type Step int

const (
	StepPhoneEntry Step = iota
	StepDocPending
	StepOTPPending
	StepPasswordPending
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepPhoneEntry:
		return "phone_entry"
	case StepDocPending:
		return "doc_pending"
	case StepOTPPending:
		return "otp_pending"
	case StepPasswordPending:
		return "password_pending"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// SessionState состояние сессии входа.
// Каждая реализация несет только поля, допустимые на своем шаге.
type SessionState interface {
	Step() Step
	sessionState()
}

// DocPending сессия создана, документ еще не подтвержден
type DocPending struct{}

// OTPPending документ подтвержден, ожидается код из SMS.
// Challenge равен nil, пока код еще не был выпущен.
type OTPPending struct {
	Challenge     *OTPChallenge
	DocLastDigits string
}

// PasswordPending документ и код подтверждены, ожидается пароль
type PasswordPending struct {
	DocLastDigits string
}

func (DocPending) Step() Step      { return StepDocPending }
func (OTPPending) Step() Step      { return StepOTPPending }
func (PasswordPending) Step() Step { return StepPasswordPending }

func (DocPending) sessionState()      {}
func (OTPPending) sessionState()      {}
func (PasswordPending) sessionState() {}

// OTPChallenge выпущенный одноразовый код
type OTPChallenge struct {
	IssuedAt     time.Time // время выпуска, используется политикой повторной отправки
	ExpiresAt    time.Time // срок действия кода
	CodeHash     string    // bcrypt хеш кода
	AttemptsLeft int       // оставшиеся попытки ввода
}

// Expired проверяет, истек ли срок действия кода
func (c *OTPChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// RemoteProfile снимок профиля пациента из ERP.
// Все поля опциональны.
type RemoteProfile struct {
	Code          *string `json:"code" yaml:"code"`
	FullName      *string `json:"fullName" yaml:"full_name"`
	BirthDate     *string `json:"birthDate" yaml:"birth_date"`
	Gender        *string `json:"gender" yaml:"gender"`
	MedcardNumber *string `json:"medcardNumber" yaml:"medcard_number"`
	Email         *string `json:"email" yaml:"email"`
}

// Merge накладывает next поверх текущего снимка: новое значение побеждает, только если оно не пустое
func (p RemoteProfile) Merge(next *RemoteProfile) RemoteProfile {
	if next == nil {
		return p
	}
	return RemoteProfile{
		Code:          Coalesce(next.Code, p.Code),
		FullName:      Coalesce(next.FullName, p.FullName),
		BirthDate:     Coalesce(next.BirthDate, p.BirthDate),
		Gender:        Coalesce(next.Gender, p.Gender),
		MedcardNumber: Coalesce(next.MedcardNumber, p.MedcardNumber),
		Email:         Coalesce(next.Email, p.Email),
	}
}

// LoginSession краткоживущая серверная сессия сценария входа
type LoginSession struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	State     SessionState
	Remote    RemoteProfile
	SessionID string
	Phone     string
}

// Expired проверяет, истекла ли сессия
func (s *LoginSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Step текущий шаг сессии
func (s *LoginSession) Step() Step {
	if s.State == nil {
		return StepPhoneEntry
	}
	return s.State.Step()
}

// DocVerified возвращает true после успешной проверки документа
func (s *LoginSession) DocVerified() bool {
	switch s.State.(type) {
	case OTPPending, PasswordPending:
		return true
	}
	return false
}

// OTPVerified возвращает true после успешной проверки кода
func (s *LoginSession) OTPVerified() bool {
	_, ok := s.State.(PasswordPending)
	return ok
}

// DocLastDigits последние цифры документа, если документ подтвержден
func (s *LoginSession) DocLastDigits() string {
	switch st := s.State.(type) {
	case OTPPending:
		return st.DocLastDigits
	case PasswordPending:
		return st.DocLastDigits
	}
	return ""
}

// Challenge выпущенный и еще не подтвержденный код
func (s *LoginSession) Challenge() *OTPChallenge {
	if st, ok := s.State.(OTPPending); ok {
		return st.Challenge
	}
	return nil
}
