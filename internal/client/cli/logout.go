package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/clinicauth/internal/client/storage"
)

// runLogout удаляет локальный профиль. Сервер сессий не хранит, запрос не нужен.
func (c *Cli) runLogout(ctx context.Context) error {
	err := c.store.DeleteProfile(ctx)
	switch {
	case errors.Is(err, storage.ErrProfileNotFound):
		c.io.Println("Not logged in")
		return nil
	case err != nil:
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	c.io.Println("✓ Logged out")
	return nil
}
