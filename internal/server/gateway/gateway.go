// Package gateway describes access to the clinic ERP patient registry.
package gateway

import (
	"context"
	"errors"

	"github.com/iudanet/clinicauth/internal/models"
)

// ErrProfileNotFound в ERP нет пациента с таким телефоном и документом
var ErrProfileNotFound = errors.New("profile not found")

// ProfileGateway ищет профиль пациента во внешней системе.
// docDigits может быть пустым: тогда поиск идет только по телефону.
// Любая ошибка, кроме ErrProfileNotFound, считается сбоем внешней системы.
type ProfileGateway interface {
	FetchProfile(ctx context.Context, phone, docDigits string) (*models.RemoteProfile, error)
}

// Результаты обращений к ERP для метрик
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Observer получает результат каждого запроса к ERP
type Observer interface {
	ObserveGatewayRequest(operation, outcome string)
}

// NopObserver ничего не делает
type NopObserver struct{}

// ObserveGatewayRequest implements Observer
func (NopObserver) ObserveGatewayRequest(string, string) {}

// Outcome возвращает метку результата для ошибки запроса
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrProfileNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
