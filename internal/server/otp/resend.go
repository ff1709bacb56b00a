package otp

import (
	"time"

	"github.com/iudanet/clinicauth/internal/models"
)

// ResendPolicy ограничивает частоту повторной отправки кода.
// Нулевой Cooldown разрешает отправку в любой момент.
type ResendPolicy struct {
	Cooldown time.Duration
}

// Wait возвращает время до разрешенной повторной отправки, 0 если отправлять можно
func (p ResendPolicy) Wait(challenge *models.OTPChallenge, now time.Time) time.Duration {
	if p.Cooldown <= 0 || challenge == nil {
		return 0
	}

	wait := challenge.IssuedAt.Add(p.Cooldown).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
