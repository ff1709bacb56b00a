// Package onec implements gateway.ProfileGateway over the 1С HTTP services.
package onec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iudanet/clinicauth/internal/models"
	"github.com/iudanet/clinicauth/internal/server/gateway"
)

const (
	// DefaultTimeout таймаут одного запроса к 1С
	DefaultTimeout = 15 * time.Second

	maxBodySize = 1 << 20

	pathToken    = "/umc_client/get_token"
	pathAuthUser = "/umc_client/auth_user"
	pathPatients = "/umc_client_users/patients"

	opToken    = "get_token"
	opAuthUser = "auth_user"
	opPatients = "patients"
)

type authMode int

const (
	authBearer authMode = iota
	authBasic
)

// Config параметры подключения к 1С
type Config struct {
	BaseURL  string
	User     string
	Password string
	Timeout  time.Duration
}

// Client HTTP клиент сервисов 1С
type Client struct {
	httpClient *http.Client
	tokens     *TokenCache
	logger     *slog.Logger
	observer   gateway.Observer
	cfg        Config
}

// New создает клиент 1С. tokens может быть общим для нескольких клиентов;
// nil создает собственный кеш.
func New(cfg Config, tokens *TokenCache, logger *slog.Logger, observer gateway.Observer) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if tokens == nil {
		tokens = NewTokenCache(DefaultRefreshBefore)
	}
	tokens.fetchTimeout = cfg.Timeout
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = gateway.NopObserver{}
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		logger:     logger,
		observer:   observer,
	}
}

// FetchProfile ищет пациента по телефону и (опционально) цифрам документа,
// затем дополняет результат карточкой пациента
func (c *Client) FetchProfile(ctx context.Context, phone, docDigits string) (*models.RemoteProfile, error) {
	phone = digitsOnly(phone)
	if len(phone) > 10 {
		phone = phone[len(phone)-10:]
	}
	if len(phone) != 10 {
		return nil, fmt.Errorf("invalid phone for onec request")
	}

	query := url.Values{"phone": {phone}}
	if doc := digitsOnly(docDigits); doc != "" {
		query.Set("docNum", doc)
	}

	details, err := c.request(ctx, pathAuthUser, opAuthUser, query)
	c.observer.ObserveGatewayRequest(opAuthUser, gateway.Outcome(err))
	if err != nil {
		return nil, err
	}

	records, err := parseRecords(details)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("onec %s: empty result: %w", opAuthUser, gateway.ErrProfileNotFound)
	}

	summary := normalizeRecord(records[0])
	if summary.Code == nil {
		return &summary, nil
	}

	patient, err := c.fetchPatient(ctx, *summary.Code)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to fetch onec patient card",
			slog.String("code", *summary.Code),
			slog.String("error", err.Error()))
		return &summary, nil
	}

	// поля карточки пациента приоритетнее сводки
	profile := summary.Merge(patient)
	return &profile, nil
}

func (c *Client) fetchPatient(ctx context.Context, code string) (*models.RemoteProfile, error) {
	details, err := c.request(ctx, pathPatients, opPatients, url.Values{"id": {code}})
	c.observer.ObserveGatewayRequest(opPatients, gateway.Outcome(err))
	if err != nil {
		return nil, err
	}

	records, err := parseRecords(details)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	patient := normalizeRecord(records[0])
	return &patient, nil
}

// request выполняет запрос с bearer токеном; если 1С отклоняет токен,
// сбрасывает его и повторяет запрос с Basic авторизацией
func (c *Client) request(ctx context.Context, path, operation string, query url.Values) (json.RawMessage, error) {
	details, err := c.do(ctx, path, operation, authBearer, query)
	if err == nil {
		return details, nil
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || !reqErr.mentionsToken() {
		return nil, err
	}

	c.logger.WarnContext(ctx, "onec rejected bearer token, retrying with basic auth",
		slog.String("operation", operation),
		slog.Int("status", reqErr.Status))
	c.tokens.Invalidate()

	return c.do(ctx, path, operation, authBasic, query)
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	details, err := c.do(ctx, pathToken, opToken, authBasic, nil)
	c.observer.ObserveGatewayRequest(opToken, gateway.Outcome(err))
	if err != nil {
		return "", err
	}

	var token flexString
	if err := json.Unmarshal(details, &token); err != nil {
		return "", fmt.Errorf("failed to parse onec token: %w", err)
	}

	return string(token), nil
}

func (c *Client) do(ctx context.Context, path, operation string, mode authMode, query url.Values) (json.RawMessage, error) {
	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	switch mode {
	case authBasic:
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	default:
		token, err := c.tokens.Token(ctx, c.fetchToken)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("onec %s request failed: %w", operation, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read onec %s response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, decErr := decodeText(body)
		if decErr != nil {
			text = body
		}
		return nil, &RequestError{Operation: operation, Status: resp.StatusCode, Body: string(text)}
	}

	return parseEnvelope(operation, body)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
