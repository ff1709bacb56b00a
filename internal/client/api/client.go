package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iudanet/clinicauth/pkg/api"
)

// Error ответ сервера с кодом не 2xx
type Error struct {
	AttemptsLeft *int
	Message      string
	StatusCode   int
	RetryAfter   int
}

func (e *Error) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Start начинает вход по телефону
func (c *Client) Start(ctx context.Context, phone string) (*api.StartResponse, error) {
	var resp api.StartResponse
	if err := c.doRequest(ctx, "/api/auth/login/start", api.StartRequest{Phone: phone}, &resp); err != nil {
		return nil, fmt.Errorf("start request failed: %w", err)
	}
	return &resp, nil
}

// VerifyDoc отправляет последние цифры документа
func (c *Client) VerifyDoc(ctx context.Context, sessionID, docDigits string) (*api.OTPResponse, error) {
	var resp api.OTPResponse
	req := api.VerifyDocRequest{SessionID: sessionID, DocDigits: docDigits}
	if err := c.doRequest(ctx, "/api/auth/login/verify-doc", req, &resp); err != nil {
		return nil, fmt.Errorf("verify-doc request failed: %w", err)
	}
	return &resp, nil
}

// ResendOTP запрашивает новый код
func (c *Client) ResendOTP(ctx context.Context, sessionID string) (*api.OTPResponse, error) {
	var resp api.OTPResponse
	if err := c.doRequest(ctx, "/api/auth/login/resend-otp", api.ResendOTPRequest{SessionID: sessionID}, &resp); err != nil {
		return nil, fmt.Errorf("resend-otp request failed: %w", err)
	}
	return &resp, nil
}

// VerifyOTP отправляет код из SMS
func (c *Client) VerifyOTP(ctx context.Context, sessionID, code string) error {
	req := api.VerifyOTPRequest{SessionID: sessionID, Code: code}
	if err := c.doRequest(ctx, "/api/auth/login/verify-otp", req, &api.SuccessResponse{}); err != nil {
		return fmt.Errorf("verify-otp request failed: %w", err)
	}
	return nil
}

// SetPassword завершает вход установкой пароля
func (c *Client) SetPassword(ctx context.Context, sessionID, password string) (*api.User, error) {
	var resp api.UserResponse
	req := api.SetPasswordRequest{SessionID: sessionID, Password: password}
	if err := c.doRequest(ctx, "/api/auth/login/set-password", req, &resp); err != nil {
		return nil, fmt.Errorf("set-password request failed: %w", err)
	}
	return &resp.User, nil
}

// Login выполняет вход по паролю
func (c *Client) Login(ctx context.Context, phone, password string) (*api.User, error) {
	var resp api.UserResponse
	if err := c.doRequest(ctx, "/api/auth/login", api.LoginRequest{Phone: phone, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp.User, nil
}

// Register регистрирует пользователя без подтверждения через 1С
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.User, error) {
	var resp api.UserResponse
	if err := c.doRequest(ctx, "/api/auth/register", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp.User, nil
}

// CheckPhone проверяет, зарегистрирован ли телефон
func (c *Client) CheckPhone(ctx context.Context, phone string) (bool, error) {
	var resp api.CheckPhoneResponse
	if err := c.doRequest(ctx, "/api/auth/check-phone", api.CheckPhoneRequest{Phone: phone}, &resp); err != nil {
		return false, fmt.Errorf("check-phone request failed: %w", err)
	}
	return resp.Exists, nil
}

// doRequest выполняет POST запрос с JSON телом
func (c *Client) doRequest(ctx context.Context, path string, body, result any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return &Error{
				StatusCode:   resp.StatusCode,
				Message:      errResp.Error,
				AttemptsLeft: errResp.AttemptsLeft,
				RetryAfter:   errResp.RetryAfter,
			}
		}
		return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
