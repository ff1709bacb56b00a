package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	clientapi "github.com/iudanet/clinicauth/internal/client/api"
	"github.com/iudanet/clinicauth/internal/validation"
	"github.com/iudanet/clinicauth/pkg/api"
)

const (
	MethodPassword = "password"
	MethodSMS      = "sms"

	resendCommand = "r"
	// maxPasswordPrompts попытки ввода нового пароля
	maxPasswordPrompts = 3
)

var (
	errNoSession         = errors.New("server returned no login session")
	errPasswordsMismatch = errors.New("passwords do not match")
)

func (c *Cli) runLogin(ctx context.Context) error {
	c.io.Println("=== Вход ===")
	c.io.Println()

	phone, err := c.readRequired("Телефон: ")
	if err != nil {
		return fmt.Errorf("failed to read phone: %w", err)
	}

	start, err := c.api.Start(ctx, phone)
	if err != nil {
		return err
	}

	if start.DisplayName != nil {
		c.io.Printf("Здравствуйте, %s!\n", *start.DisplayName)
	}

	if start.HasLocalPassword {
		return c.loginWithPassword(ctx, phone)
	}

	if start.SessionID == nil {
		return errNoSession
	}

	return c.loginWithSMS(ctx, *start.SessionID)
}

func (c *Cli) loginWithPassword(ctx context.Context, phone string) error {
	password, err := c.io.ReadPassword("Пароль: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	user, err := c.api.Login(ctx, phone, password)
	if err != nil {
		return err
	}

	if err := c.saveProfile(ctx, user, MethodPassword); err != nil {
		return err
	}

	c.printWelcome(user)
	return nil
}

// loginWithSMS первый вход: документ, код из SMS, установка пароля
func (c *Cli) loginWithSMS(ctx context.Context, sessionID string) error {
	c.io.Println("Пароль для этого номера еще не задан. Подтвердите личность.")

	digits, err := c.readRequired("Последние 3 цифры паспорта: ")
	if err != nil {
		return fmt.Errorf("failed to read document digits: %w", err)
	}

	otp, err := c.api.VerifyDoc(ctx, sessionID, digits)
	if err != nil {
		return err
	}
	c.printOTP(otp)

	if err := c.confirmCode(ctx, sessionID); err != nil {
		return err
	}

	password, err := c.readNewPassword()
	if err != nil {
		return err
	}

	user, err := c.api.SetPassword(ctx, sessionID, password)
	if err != nil {
		return err
	}

	if err := c.saveProfile(ctx, user, MethodSMS); err != nil {
		return err
	}

	c.printWelcome(user)
	return nil
}

// confirmCode запрашивает код, пока сервер его не примет.
// Ввод "r" запрашивает новый код.
func (c *Cli) confirmCode(ctx context.Context, sessionID string) error {
	for {
		code, err := c.readRequired("Код из SMS (r - отправить повторно): ")
		if err != nil {
			return fmt.Errorf("failed to read code: %w", err)
		}

		if code == resendCommand {
			otp, err := c.api.ResendOTP(ctx, sessionID)
			if err != nil {
				if statusOf(err) != http.StatusTooManyRequests {
					return err
				}
				c.printAPIError(err)
				continue
			}
			c.printOTP(otp)
			continue
		}

		err = c.api.VerifyOTP(ctx, sessionID, code)
		switch statusOf(err) {
		case 0:
			if err != nil {
				return err
			}
			c.io.Println("✓ Код подтвержден")
			return nil
		case http.StatusConflict:
			// код уже подтвержден ранее
			return nil
		case http.StatusBadRequest, http.StatusGone, http.StatusTooManyRequests:
			c.printAPIError(err)
		default:
			return err
		}
	}
}

func (c *Cli) readNewPassword() (string, error) {
	for range maxPasswordPrompts {
		password, err := c.io.ReadPassword(fmt.Sprintf("Новый пароль (не менее %d символов): ", validation.MinPasswordLen))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		if err := validation.ValidatePassword(password, validation.MinPasswordLen); err != nil {
			c.io.Printf("Пароль не подходит: %v\n", err)
			continue
		}

		confirm, err := c.io.ReadPassword("Повторите пароль: ")
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if confirm != password {
			c.io.Println("Пароли не совпадают")
			continue
		}

		return password, nil
	}
	return "", errPasswordsMismatch
}

func (c *Cli) printOTP(otp *api.OTPResponse) {
	c.io.Printf("Код отправлен по SMS, действует до %s\n", otp.OTPExpiresAt.Local().Format("15:04:05"))
	if otp.DebugCode != "" {
		c.io.Printf("Тестовый код: %s\n", otp.DebugCode)
	}
}

func (c *Cli) printAPIError(err error) {
	var apiErr *clientapi.Error
	if !errors.As(err, &apiErr) {
		c.io.Printf("Ошибка: %v\n", err)
		return
	}

	c.io.Println(apiErr.Message)
	if apiErr.StatusCode == http.StatusGone || apiErr.StatusCode == http.StatusTooManyRequests {
		if apiErr.RetryAfter == 0 {
			c.io.Println("Введите r, чтобы получить новый код")
		}
	}
}

func (c *Cli) printWelcome(user *api.User) {
	c.io.Println()
	c.io.Println("✓ Вход выполнен")
	c.io.Printf("Телефон: %s\n", validation.MaskPhone(user.Phone))
	if user.FullName != nil {
		c.io.Printf("Пациент: %s\n", *user.FullName)
	}
}

// statusOf код ответа сервера; 0 для nil и сетевых ошибок
func statusOf(err error) int {
	var apiErr *clientapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
