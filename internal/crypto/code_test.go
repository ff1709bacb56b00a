package crypto

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOTP_Range(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := GenerateOTP()
		require.NoError(t, err)
		require.Len(t, code, 4)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, OTPMin)
		assert.LessOrEqual(t, n, OTPMax)
	}
}

func TestGenerateOTPFrom_Bounds(t *testing.T) {
	// нулевые байты дают нижнюю границу
	code, err := GenerateOTPFrom(bytes.NewReader(make([]byte, 64)))
	require.NoError(t, err)
	assert.Equal(t, "1000", code)
}

func TestGenerateOTPFrom_ReaderError(t *testing.T) {
	_, err := GenerateOTPFrom(bytes.NewReader(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate otp code")
}
