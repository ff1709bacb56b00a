package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clientapi "github.com/iudanet/clinicauth/internal/client/api"
	"github.com/iudanet/clinicauth/internal/client/iocli"
	"github.com/iudanet/clinicauth/internal/client/storage"
	"github.com/iudanet/clinicauth/internal/client/storage/boltdb"
	"github.com/iudanet/clinicauth/pkg/api"
)

const testServer = "http://localhost:8080"

var errUnexpectedCall = errors.New("unexpected api call")

// apiStub реализует API через функции; незаданный метод возвращает ошибку
type apiStub struct {
	start       func(phone string) (*api.StartResponse, error)
	verifyDoc   func(sessionID, digits string) (*api.OTPResponse, error)
	resendOTP   func(sessionID string) (*api.OTPResponse, error)
	verifyOTP   func(sessionID, code string) error
	setPassword func(sessionID, password string) (*api.User, error)
	login       func(phone, password string) (*api.User, error)
	register    func(req api.RegisterRequest) (*api.User, error)
	checkPhone  func(phone string) (bool, error)
}

func (s *apiStub) Start(_ context.Context, phone string) (*api.StartResponse, error) {
	if s.start == nil {
		return nil, errUnexpectedCall
	}
	return s.start(phone)
}

func (s *apiStub) VerifyDoc(_ context.Context, sessionID, digits string) (*api.OTPResponse, error) {
	if s.verifyDoc == nil {
		return nil, errUnexpectedCall
	}
	return s.verifyDoc(sessionID, digits)
}

func (s *apiStub) ResendOTP(_ context.Context, sessionID string) (*api.OTPResponse, error) {
	if s.resendOTP == nil {
		return nil, errUnexpectedCall
	}
	return s.resendOTP(sessionID)
}

func (s *apiStub) VerifyOTP(_ context.Context, sessionID, code string) error {
	if s.verifyOTP == nil {
		return errUnexpectedCall
	}
	return s.verifyOTP(sessionID, code)
}

func (s *apiStub) SetPassword(_ context.Context, sessionID, password string) (*api.User, error) {
	if s.setPassword == nil {
		return nil, errUnexpectedCall
	}
	return s.setPassword(sessionID, password)
}

func (s *apiStub) Login(_ context.Context, phone, password string) (*api.User, error) {
	if s.login == nil {
		return nil, errUnexpectedCall
	}
	return s.login(phone, password)
}

func (s *apiStub) Register(_ context.Context, req api.RegisterRequest) (*api.User, error) {
	if s.register == nil {
		return nil, errUnexpectedCall
	}
	return s.register(req)
}

func (s *apiStub) CheckPhone(_ context.Context, phone string) (bool, error) {
	if s.checkPhone == nil {
		return false, errUnexpectedCall
	}
	return s.checkPhone(phone)
}

// scriptedIO отдает заранее заданные ответы и собирает вывод
func scriptedIO(inputs, passwords []string) (*iocli.IOMock, *strings.Builder) {
	out := &strings.Builder{}
	pop := func(queue *[]string) (string, error) {
		if len(*queue) == 0 {
			return "", io.EOF
		}
		value := (*queue)[0]
		*queue = (*queue)[1:]
		return value, nil
	}

	mock := &iocli.IOMock{
		PrintlnFunc: func(a ...any) { _, _ = fmt.Fprintln(out, a...) },
		PrintfFunc:  func(format string, a ...any) { _, _ = fmt.Fprintf(out, format, a...) },
		WriteFunc:   func(p []byte) (int, error) { return out.Write(p) },
		ReadInputFunc: func(prompt string) (string, error) {
			return pop(&inputs)
		},
		ReadPasswordFunc: func(prompt string) (string, error) {
			return pop(&passwords)
		},
	}
	return mock, out
}

func newTestStore(t *testing.T) *boltdb.Storage {
	t.Helper()
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestCli(t *testing.T, stub *apiStub, inputs, passwords []string) (*Cli, *iocli.IOMock, *strings.Builder, *boltdb.Storage) {
	t.Helper()
	mock, out := scriptedIO(inputs, passwords)
	store := newTestStore(t)
	c := New(mock, stub, store, testServer)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return c, mock, out, store
}

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}

func testOTP(debug string) *api.OTPResponse {
	return &api.OTPResponse{
		Success:      true,
		OTPExpiresAt: time.Now().Add(5 * time.Minute),
		DebugCode:    debug,
	}
}

func TestCli_Run_UnknownCommand(t *testing.T) {
	c, _, _, _ := newTestCli(t, &apiStub{}, nil, nil)

	err := c.Run(context.Background(), "sync")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestCli_PrintUsage(t *testing.T) {
	c, mock, out, _ := newTestCli(t, &apiStub{}, nil, nil)

	c.PrintUsage()

	assert.NotEmpty(t, mock.PrintlnCalls())
	for _, command := range []string{"login", "register", "status", "logout"} {
		assert.Contains(t, out.String(), command)
	}
}

func TestCli_Login_WithPassword(t *testing.T) {
	stub := &apiStub{
		start: func(phone string) (*api.StartResponse, error) {
			assert.Equal(t, "8 916 123-45-67", phone)
			return &api.StartResponse{Success: true, HasLocalPassword: true, DisplayName: strPtr("Иванов Иван")}, nil
		},
		login: func(phone, password string) (*api.User, error) {
			assert.Equal(t, "8 916 123-45-67", phone)
			assert.Equal(t, "password1", password)
			return &api.User{ID: 7, Phone: "9161234567", FullName: strPtr("Иванов Иван")}, nil
		},
	}
	c, mock, out, store := newTestCli(t, stub, []string{"8 916 123-45-67"}, []string{"password1"})

	require.NoError(t, c.Run(context.Background(), "login"))

	assert.Len(t, mock.ReadPasswordCalls(), 1)
	assert.Contains(t, out.String(), "Здравствуйте, Иванов Иван!")
	assert.Contains(t, out.String(), "******4567")

	profile, err := store.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodPassword, profile.Method)
	assert.Equal(t, testServer, profile.Server)
	assert.Equal(t, int64(7), profile.User.ID)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), profile.LoggedInAt)
}

func TestCli_Login_WrongPassword(t *testing.T) {
	stub := &apiStub{
		start: func(string) (*api.StartResponse, error) {
			return &api.StartResponse{Success: true, HasLocalPassword: true}, nil
		},
		login: func(string, string) (*api.User, error) {
			return nil, &clientapi.Error{StatusCode: http.StatusUnauthorized, Message: "Неверные данные для входа"}
		},
	}
	c, _, _, store := newTestCli(t, stub, []string{"9161234567"}, []string{"wrong"})

	err := c.Run(context.Background(), "login")

	var apiErr *clientapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = store.GetProfile(context.Background())
	assert.ErrorIs(t, err, storage.ErrProfileNotFound)
}

func TestCli_Login_WithSMS(t *testing.T) {
	var (
		verified    []string
		resendCalls int
	)
	stub := &apiStub{
		start: func(string) (*api.StartResponse, error) {
			return &api.StartResponse{Success: true, SessionID: strPtr("sid"), DisplayName: strPtr("Петров")}, nil
		},
		verifyDoc: func(sessionID, digits string) (*api.OTPResponse, error) {
			assert.Equal(t, "sid", sessionID)
			assert.Equal(t, "456", digits)
			return testOTP("4821"), nil
		},
		resendOTP: func(sessionID string) (*api.OTPResponse, error) {
			resendCalls++
			return testOTP("1357"), nil
		},
		verifyOTP: func(sessionID, code string) error {
			verified = append(verified, code)
			if code != "1357" {
				return &clientapi.Error{
					StatusCode:   http.StatusBadRequest,
					Message:      "Неверный код. Осталось попыток: 2",
					AttemptsLeft: intPtr(2),
				}
			}
			return nil
		},
		setPassword: func(sessionID, password string) (*api.User, error) {
			assert.Equal(t, "longpass1", password)
			return &api.User{ID: 3, Phone: "9123456789", MedcardNumber: strPtr("MC-1")}, nil
		},
	}
	c, mock, out, store := newTestCli(t, stub,
		[]string{"9123456789", "456", "0000", "r", "1357"},
		[]string{"short", "longpass1", "different", "longpass1", "longpass1"},
	)

	require.NoError(t, c.Run(context.Background(), "login"))

	assert.Equal(t, []string{"0000", "1357"}, verified)
	assert.Equal(t, 1, resendCalls)
	assert.Len(t, mock.ReadPasswordCalls(), 5)

	output := out.String()
	assert.Contains(t, output, "Тестовый код: 4821")
	assert.Contains(t, output, "Тестовый код: 1357")
	assert.Contains(t, output, "Осталось попыток: 2")
	assert.Contains(t, output, "Пароли не совпадают")
	assert.Contains(t, output, "Пароль не подходит")

	profile, err := store.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodSMS, profile.Method)
	assert.Equal(t, "MC-1", *profile.User.MedcardNumber)
}

func TestCli_Login_WithSMS_ResendCooldown(t *testing.T) {
	stub := &apiStub{
		start: func(string) (*api.StartResponse, error) {
			return &api.StartResponse{Success: true, SessionID: strPtr("sid")}, nil
		},
		verifyDoc: func(string, string) (*api.OTPResponse, error) {
			return testOTP(""), nil
		},
		resendOTP: func(string) (*api.OTPResponse, error) {
			return nil, &clientapi.Error{
				StatusCode: http.StatusTooManyRequests,
				Message:    "Повторно запросить код можно через 30 сек.",
				RetryAfter: 30,
			}
		},
		verifyOTP: func(string, string) error { return nil },
		setPassword: func(string, string) (*api.User, error) {
			return &api.User{ID: 1, Phone: "9123456789"}, nil
		},
	}
	c, _, out, _ := newTestCli(t, stub,
		[]string{"9123456789", "456", "r", "1234"},
		[]string{"longpass1", "longpass1"},
	)

	require.NoError(t, c.Run(context.Background(), "login"))
	assert.Contains(t, out.String(), "через 30 сек.")
	assert.NotContains(t, out.String(), "Тестовый код")
}

func TestCli_Login_WithSMS_SessionLost(t *testing.T) {
	stub := &apiStub{
		start: func(string) (*api.StartResponse, error) {
			return &api.StartResponse{Success: true, SessionID: strPtr("sid")}, nil
		},
		verifyDoc: func(string, string) (*api.OTPResponse, error) {
			return testOTP("1111"), nil
		},
		verifyOTP: func(string, string) error {
			return &clientapi.Error{StatusCode: http.StatusNotFound, Message: "Сессия не найдена"}
		},
	}
	c, _, _, store := newTestCli(t, stub, []string{"9123456789", "456", "1111"}, nil)

	err := c.Run(context.Background(), "login")
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	_, err = store.GetProfile(context.Background())
	assert.ErrorIs(t, err, storage.ErrProfileNotFound)
}

func TestCli_Login_Errors(t *testing.T) {
	t.Run("start fails", func(t *testing.T) {
		notFound := &clientapi.Error{StatusCode: http.StatusNotFound, Message: "Карта в 1С не найдена"}
		stub := &apiStub{
			start: func(string) (*api.StartResponse, error) { return nil, notFound },
		}
		c, _, _, _ := newTestCli(t, stub, []string{"9000000000"}, nil)

		assert.ErrorIs(t, c.Run(context.Background(), "login"), notFound)
	})

	t.Run("no session", func(t *testing.T) {
		stub := &apiStub{
			start: func(string) (*api.StartResponse, error) { return &api.StartResponse{Success: true}, nil },
		}
		c, _, _, _ := newTestCli(t, stub, []string{"9000000000"}, nil)

		assert.ErrorIs(t, c.Run(context.Background(), "login"), errNoSession)
	})

	t.Run("input closed", func(t *testing.T) {
		c, _, _, _ := newTestCli(t, &apiStub{}, nil, nil)

		assert.ErrorIs(t, c.Run(context.Background(), "login"), io.EOF)
	})

	t.Run("passwords never match", func(t *testing.T) {
		stub := &apiStub{
			start: func(string) (*api.StartResponse, error) {
				return &api.StartResponse{Success: true, SessionID: strPtr("sid")}, nil
			},
			verifyDoc: func(string, string) (*api.OTPResponse, error) { return testOTP(""), nil },
			verifyOTP: func(string, string) error { return nil },
		}
		c, _, _, _ := newTestCli(t, stub,
			[]string{"9123456789", "456", "1234"},
			[]string{"longpass1", "longpass2", "longpass1", "longpass2", "longpass1", "longpass2"},
		)

		assert.ErrorIs(t, c.Run(context.Background(), "login"), errPasswordsMismatch)
	})
}

func TestCli_StatusAndLogout(t *testing.T) {
	c, _, out, store := newTestCli(t, &apiStub{}, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Run(ctx, "status"))
	assert.Contains(t, out.String(), "Not authenticated")

	require.NoError(t, c.Run(ctx, "logout"))
	assert.Contains(t, out.String(), "Not logged in")

	require.NoError(t, store.SaveProfile(ctx, &storage.Profile{
		LoggedInAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Server:     "https://portal.example.com",
		Method:     MethodSMS,
		User: api.User{
			ID:       2,
			Phone:    "9161234567",
			FullName: strPtr("Сидорова Анна"),
			Email:    strPtr("anna@example.com"),
		},
	}))

	out.Reset()
	require.NoError(t, c.Run(ctx, "status"))
	output := out.String()
	assert.Contains(t, output, "Status: Authenticated")
	assert.Contains(t, output, "Full name: Сидорова Анна")
	assert.Contains(t, output, "Email: anna@example.com")
	assert.Contains(t, output, "******4567")
	assert.NotContains(t, output, "Birth date")
	assert.Contains(t, output, "another server")

	out.Reset()
	require.NoError(t, c.Run(ctx, "logout"))
	assert.Contains(t, out.String(), "Logged out")

	_, err := store.GetProfile(ctx)
	assert.ErrorIs(t, err, storage.ErrProfileNotFound)
}

func TestCli_Register(t *testing.T) {
	var got api.RegisterRequest
	stub := &apiStub{
		checkPhone: func(phone string) (bool, error) {
			assert.Equal(t, "+7 912 000-11-22", phone)
			return false, nil
		},
		register: func(req api.RegisterRequest) (*api.User, error) {
			got = req
			return &api.User{ID: 11, Phone: "9120001122", FullName: req.FullName}, nil
		},
	}
	c, _, out, store := newTestCli(t, stub,
		[]string{"+7 912 000-11-22", "Кузнецов Олег", "", "", "123"},
		[]string{"password1", "password1"},
	)

	require.NoError(t, c.Run(context.Background(), "register"))

	assert.Equal(t, "+7 912 000-11-22", got.Phone)
	require.NotNil(t, got.FullName)
	assert.Equal(t, "Кузнецов Олег", *got.FullName)
	assert.Nil(t, got.BirthDate)
	assert.Nil(t, got.Email)
	assert.Equal(t, "123", got.PassportLastDigits)
	assert.Equal(t, "password1", got.Password)
	assert.Contains(t, out.String(), "Регистрация завершена")

	profile, err := store.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(11), profile.User.ID)
}

func TestCli_Register_Rejected(t *testing.T) {
	t.Run("phone taken", func(t *testing.T) {
		stub := &apiStub{
			checkPhone: func(string) (bool, error) { return true, nil },
		}
		c, _, _, _ := newTestCli(t, stub, []string{"9161234567"}, nil)

		assert.ErrorIs(t, c.Run(context.Background(), "register"), errPhoneTaken)
	})

	t.Run("bad document digits", func(t *testing.T) {
		stub := &apiStub{
			checkPhone: func(string) (bool, error) { return false, nil },
		}
		c, _, _, _ := newTestCli(t, stub, []string{"9161234567", "", "", "", "12"}, nil)

		assert.Error(t, c.Run(context.Background(), "register"))
	})
}
