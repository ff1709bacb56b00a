package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/clinicauth/internal/client/storage"
	"github.com/iudanet/clinicauth/internal/validation"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Статус ===")
	c.io.Println()

	profile, err := c.store.GetProfile(ctx)
	if errors.Is(err, storage.ErrProfileNotFound) {
		c.io.Println("Status: Not authenticated")
		c.io.Println()
		c.io.Println("Run 'clinicauth login' to authenticate.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get profile: %w", err)
	}

	user := profile.User
	c.io.Println("Status: Authenticated")
	c.io.Printf("Server: %s\n", profile.Server)
	c.io.Printf("Logged in: %s (%s)\n", profile.LoggedInAt.Local().Format(time.DateTime), profile.Method)
	c.io.Printf("Phone: %s\n", validation.MaskPhone(user.Phone))

	printField := func(label string, value *string) {
		if value != nil {
			c.io.Printf("%s: %s\n", label, *value)
		}
	}
	printField("Full name", user.FullName)
	printField("Birth date", user.BirthDate)
	printField("Email", user.Email)
	printField("Medical card", user.MedcardNumber)

	if profile.Server != c.server {
		c.io.Println()
		c.io.Printf("⚠️  Profile was saved for another server (current: %s)\n", c.server)
	}

	return nil
}
