package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/clinicauth/internal/validation"
	"github.com/iudanet/clinicauth/pkg/api"
)

var errPhoneTaken = errors.New("phone is already registered, use login")

func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Регистрация ===")
	c.io.Println()

	phone, err := c.readRequired("Телефон: ")
	if err != nil {
		return fmt.Errorf("failed to read phone: %w", err)
	}

	exists, err := c.api.CheckPhone(ctx, phone)
	if err != nil {
		return err
	}
	if exists {
		return errPhoneTaken
	}

	req := api.RegisterRequest{Phone: phone}

	optional := []struct {
		field  **string
		prompt string
	}{
		{&req.FullName, "ФИО (необязательно): "},
		{&req.BirthDate, "Дата рождения ГГГГ-ММ-ДД (необязательно): "},
		{&req.Email, "Email (необязательно): "},
	}
	for _, o := range optional {
		value, err := c.io.ReadInput(o.prompt)
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if value != "" {
			*o.field = &value
		}
	}

	req.PassportLastDigits, err = c.readRequired("Последние 3 цифры паспорта: ")
	if err != nil {
		return fmt.Errorf("failed to read document digits: %w", err)
	}
	if _, err := validation.DocLastDigits(req.PassportLastDigits); err != nil {
		return fmt.Errorf("invalid document digits: %w", err)
	}

	req.Password, err = c.readNewPassword()
	if err != nil {
		return err
	}

	user, err := c.api.Register(ctx, req)
	if err != nil {
		return err
	}

	if err := c.saveProfile(ctx, user, MethodPassword); err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Регистрация завершена")
	c.io.Printf("Телефон: %s\n", validation.MaskPhone(user.Phone))
	return nil
}
