package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost стоимость bcrypt для паролей и одноразовых кодов
const DefaultCost = 10

// ErrMismatch значение не соответствует хешу
var ErrMismatch = errors.New("hash mismatch")

// Hasher хеширует секреты пользователя (пароли и коды из SMS) через bcrypt
type Hasher struct {
	cost int
}

// NewHasher создает Hasher с указанной стоимостью bcrypt
// Значение вне допустимого диапазона заменяется на DefaultCost
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash возвращает bcrypt хеш секрета
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}

	return string(hash), nil
}

// Verify сравнивает секрет с хешем
// Возвращает ErrMismatch, если секрет не подходит
func (h *Hasher) Verify(secret, hash string) error {
	if hash == "" {
		return fmt.Errorf("hash cannot be empty")
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return fmt.Errorf("failed to compare hash: %w", err)
}
