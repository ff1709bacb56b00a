package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
)

const (
	// OTPMin наименьший 4-значный код
	OTPMin = 1000
	// OTPMax наибольший 4-значный код
	OTPMax = 9999
)

// GenerateOTP возвращает код, равномерно распределенный на [1000, 9999]
func GenerateOTP() (string, error) {
	return GenerateOTPFrom(rand.Reader)
}

// GenerateOTPFrom генерирует код из заданного источника случайности
func GenerateOTPFrom(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(OTPMax-OTPMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+OTPMin, 10), nil
}
