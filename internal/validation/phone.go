package validation

import (
	"errors"
	"strings"
)

// PhoneDigits длина национального номера без кода страны
const PhoneDigits = 10

// ErrInvalidPhone номер не удалось привести к 10 цифрам
var ErrInvalidPhone = errors.New("invalid phone number")

// extractDigits оставляет в строке только ASCII цифры
func extractDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone приводит российский номер к 10 цифрам без кода страны.
// "+7 912 345 67 89", "8-912-345-67-89" и "79123456789" дают "9123456789".
// Повторная нормализация результата возвращает его же.
func NormalizePhone(value string) (string, error) {
	digits := extractDigits(value)
	trimmed := strings.TrimSpace(value)

	switch {
	case strings.HasPrefix(trimmed, "+7") && strings.HasPrefix(digits, "7"):
		digits = digits[1:]
	case strings.HasPrefix(digits, "7") && len(digits) == PhoneDigits+1:
		digits = digits[1:]
	case strings.HasPrefix(digits, "8") && len(digits) >= PhoneDigits+1:
		digits = digits[1:]
	}

	if len(digits) > PhoneDigits {
		digits = digits[len(digits)-PhoneDigits:]
	}

	if len(digits) != PhoneDigits {
		return "", ErrInvalidPhone
	}

	return digits, nil
}

// MaskPhone скрывает номер для логов, оставляя последние 4 цифры
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
