// Package cli реализует команды консольного клиента портала.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/clinicauth/internal/client/iocli"
	"github.com/iudanet/clinicauth/internal/client/storage"
	"github.com/iudanet/clinicauth/pkg/api"
)

// ErrUnknownCommand неизвестная команда
var ErrUnknownCommand = errors.New("unknown command")

// API операции сервера, которые использует клиент
type API interface {
	Start(ctx context.Context, phone string) (*api.StartResponse, error)
	VerifyDoc(ctx context.Context, sessionID, docDigits string) (*api.OTPResponse, error)
	ResendOTP(ctx context.Context, sessionID string) (*api.OTPResponse, error)
	VerifyOTP(ctx context.Context, sessionID, code string) error
	SetPassword(ctx context.Context, sessionID, password string) (*api.User, error)
	Login(ctx context.Context, phone, password string) (*api.User, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.User, error)
	CheckPhone(ctx context.Context, phone string) (bool, error)
}

type Cli struct {
	io     iocli.IO
	api    API
	store  storage.ProfileStorage
	now    func() time.Time
	server string
}

func New(io iocli.IO, apiClient API, store storage.ProfileStorage, server string) *Cli {
	return &Cli{
		io:     io,
		api:    apiClient,
		store:  store,
		now:    time.Now,
		server: server,
	}
}

// Run выполняет команду
func (c *Cli) Run(ctx context.Context, command string) error {
	switch command {
	case "login":
		return c.runLogin(ctx)
	case "register":
		return c.runRegister(ctx)
	case "status":
		return c.runStatus(ctx)
	case "logout":
		return c.runLogout(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// PrintUsage выводит справку
func (c *Cli) PrintUsage() {
	c.io.Println("Clinic portal client")
	c.io.Println()
	c.io.Println("Usage:")
	c.io.Println("  clinicauth [OPTIONS] COMMAND")
	c.io.Println()
	c.io.Println("Options:")
	c.io.Println("  --version      Show version information")
	c.io.Println("  --server URL   Server URL (default: http://localhost:8080)")
	c.io.Println("  --db PATH      Path to local database (default: clinicauth-client.db)")
	c.io.Println()
	c.io.Println("Commands:")
	c.io.Println("  login          Вход по паролю или по документу и коду из SMS")
	c.io.Println("  register       Регистрация без карты в 1С")
	c.io.Println("  status         Показать текущий профиль")
	c.io.Println("  logout         Удалить сохраненный профиль")
}

// saveProfile сохраняет профиль после успешного входа
func (c *Cli) saveProfile(ctx context.Context, user *api.User, method string) error {
	profile := &storage.Profile{
		LoggedInAt: c.now().UTC(),
		Server:     c.server,
		Method:     method,
		User:       *user,
	}
	if err := c.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// readRequired повторяет запрос, пока не введено непустое значение
func (c *Cli) readRequired(prompt string) (string, error) {
	for {
		value, err := c.io.ReadInput(prompt)
		if err != nil {
			return "", err
		}
		if value != "" {
			return value, nil
		}
	}
}
