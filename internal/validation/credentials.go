package validation

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// DocDigitsLen количество последних цифр документа, используемых для сверки с ERP
	DocDigitsLen = 3
	// MinPasswordLen минимальная длина пароля пациента
	MinPasswordLen = 8
	// MaxPasswordBytes предел bcrypt: более длинные пароли он не принимает
	MaxPasswordBytes = 72
)

var (
	// ErrInvalidDocDigits передано меньше 3 цифр документа
	ErrInvalidDocDigits = errors.New("document digits must contain at least 3 digits")
	// ErrEmptyOTPCode код не содержит ни одной цифры
	ErrEmptyOTPCode = errors.New("otp code is empty")
	// ErrPasswordTooLong пароль длиннее MaxPasswordBytes байт
	ErrPasswordTooLong = errors.New("password is too long")
)

// DocLastDigits извлекает последние 3 цифры документа из произвольного ввода ("45 06 123456" -> "456")
func DocLastDigits(value string) (string, error) {
	digits := extractDigits(value)
	if len(digits) < DocDigitsLen {
		return "", ErrInvalidDocDigits
	}
	return digits[len(digits)-DocDigitsLen:], nil
}

// CleanOTPCode удаляет из кода все, кроме цифр
func CleanOTPCode(value string) (string, error) {
	digits := extractDigits(value)
	if digits == "" {
		return "", ErrEmptyOTPCode
	}
	return digits, nil
}

// ValidatePassword проверяет минимальные требования к паролю
// Минимальная длина считается в символах, максимальная в байтах UTF-8
func ValidatePassword(password string, minLen int) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if utf8.RuneCountInString(password) < minLen {
		return fmt.Errorf("password must be at least %d characters long", minLen)
	}

	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrPasswordTooLong, len(password), MaxPasswordBytes)
	}

	return nil
}
