// Package api описывает тела запросов и ответов HTTP API портала.
// Используется сервером и CLI клиентом.
package api

import "time"

// StartRequest первый шаг входа
type StartRequest struct {
	Phone string `json:"phone"` // телефон в любом формате
}

// StartResponse ответ на первый шаг входа.
// Для пользователя с паролем SessionID равен nil: клиент переходит ко входу по паролю.
type StartResponse struct {
	SessionID        *string `json:"sessionId"`
	DisplayName      *string `json:"displayName"`
	Success          bool    `json:"success"`
	HasLocalPassword bool    `json:"hasLocalPassword"`
}

// VerifyDocRequest сверка последних цифр документа
type VerifyDocRequest struct {
	SessionID string `json:"sessionId"`
	DocDigits string `json:"docDigits"`
}

// ResendOTPRequest повторная отправка кода
type ResendOTPRequest struct {
	SessionID string `json:"sessionId"`
}

// OTPResponse ответ на выпуск кода
type OTPResponse struct {
	OTPExpiresAt time.Time `json:"otpExpiresAt"`
	DebugCode    string    `json:"debugCode,omitempty"` // только вне production
	Success      bool      `json:"success"`
}

// VerifyOTPRequest проверка кода из SMS
type VerifyOTPRequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

// SuccessResponse ответ без данных
type SuccessResponse struct {
	Success bool `json:"success"`
}

// SetPasswordRequest завершение сессии входа
type SetPasswordRequest struct {
	SessionID string `json:"sessionId"`
	Password  string `json:"password"`
}

// LoginRequest вход по паролю
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// RegisterRequest простая регистрация
type RegisterRequest struct {
	FullName           *string `json:"fullName,omitempty"`
	BirthDate          *string `json:"birthDate,omitempty"`
	Email              *string `json:"email,omitempty"`
	Phone              string  `json:"phone"`
	Password           string  `json:"password"`
	PassportLastDigits string  `json:"passportLastDigits"`
}

// CheckPhoneRequest проверка регистрации телефона
type CheckPhoneRequest struct {
	Phone string `json:"phone"`
}

// CheckPhoneResponse результат проверки телефона
type CheckPhoneResponse struct {
	Exists bool `json:"exists"`
}

// User профиль пациента, отдаваемый клиенту
type User struct {
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	FullName          *string   `json:"fullName"`
	BirthDate         *string   `json:"birthDate"`
	Email             *string   `json:"email"`
	PassportSeries    *string   `json:"passportSeries"`
	PassportNumber    *string   `json:"passportNumber"`
	PassportIssueDate *string   `json:"passportIssueDate"`
	PassportIssuedBy  *string   `json:"passportIssuedBy"`
	OnecID            *string   `json:"onecId"`
	MedcardNumber     *string   `json:"medcardNumber"`
	Gender            *string   `json:"gender"`
	Phone             string    `json:"phone"`
	ID                int64     `json:"id"`
}

// UserResponse ответ с профилем пользователя
type UserResponse struct {
	User    User `json:"user"`
	Success bool `json:"success"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	AttemptsLeft *int   `json:"attemptsLeft,omitempty"` // оставшиеся попытки ввода кода
	Error        string `json:"error"`                  // сообщение для пациента
	RetryAfter   int    `json:"retryAfter,omitempty"`   // секунды до повторной отправки
}

// HealthResponse состояние сервиса
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
